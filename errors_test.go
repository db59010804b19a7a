package kueri

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("connection refused")
	err := &Error{
		Type:    ErrorTypeNetwork,
		Message: "transport request failed",
		Cause:   cause,
	}
	msg := err.Error()
	if !strings.Contains(msg, "Network") || !strings.Contains(msg, "connection refused") {
		t.Errorf("message should carry type and cause: %q", msg)
	}

	httpErr := &Error{Type: ErrorTypeHTTP, Message: "server returned non-ok status", Status: 503, Plugin: "retry"}
	msg = httpErr.Error()
	if !strings.Contains(msg, "503") || !strings.Contains(msg, "retry") {
		t.Errorf("message should carry status and plugin: %q", msg)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &Error{Type: ErrorTypeNetwork, Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause to errors.Is")
	}
}

func TestErrorSentinelMatching(t *testing.T) {
	abort := newAbortError(OperationRead, "/users", "GET /users", nil)
	if !errors.Is(abort, ErrAborted) {
		t.Error("abort errors should match ErrAborted")
	}
	if !IsAbort(abort) {
		t.Error("IsAbort should report abort errors")
	}
	if IsAbort(newNetworkError(OperationRead, "/users", "GET /users", nil)) {
		t.Error("network errors are not aborts")
	}

	throttled := &Error{Type: ErrorTypeThrottle, Message: "no tokens"}
	if !errors.Is(throttled, ErrThrottled) {
		t.Error("throttle errors should match ErrThrottled")
	}
}

func TestErrorTypeMatching(t *testing.T) {
	err := newHTTPError(OperationWrite, "/users", "POST /users", 500, nil)
	if !errors.Is(err, &Error{Type: ErrorTypeHTTP}) {
		t.Error("errors.Is should match on error type")
	}
	if errors.Is(err, &Error{Type: ErrorTypeNetwork}) {
		t.Error("different types must not match")
	}
}

func TestErrorCarriesRequestIdentity(t *testing.T) {
	err := newHTTPError(OperationRead, "/users/1", "GET /users/1", 404, map[string]any{"reason": "gone"})
	if err.Operation != OperationRead || err.Path != "/users/1" || err.QueryKey != "GET /users/1" {
		t.Errorf("error lost request identity: %+v", err)
	}
	if err.Status != 404 || err.Body == nil {
		t.Errorf("error lost response detail: %+v", err)
	}
	if err.Timestamp.IsZero() {
		t.Error("error should be timestamped")
	}
}

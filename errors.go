package kueri

import (
	"errors"
	"fmt"
	"time"
)

// Error type constants classify failures flowing through the response envelope.
const (
	// ErrorTypeNetwork indicates the transport rejected before a response existed.
	ErrorTypeNetwork = "Network"
	// ErrorTypeHTTP indicates the transport resolved with a non-OK status.
	ErrorTypeHTTP = "HTTP"
	// ErrorTypeAbort indicates the operation was cancelled before the transport settled.
	ErrorTypeAbort = "Abort"
	// ErrorTypeThrottle indicates a throttle gate refused the call before the transport.
	ErrorTypeThrottle = "Throttle"
	// ErrorTypePlugin indicates a middleware or lifecycle hook panicked and was recovered.
	ErrorTypePlugin = "Plugin"
	// ErrorTypeProgrammer indicates a malformed call (missing path parameter, bad
	// descriptor, invalid plugin). These panic synchronously and never appear in
	// the response envelope.
	ErrorTypeProgrammer = "Programmer"
)

// Sentinel errors for common failure scenarios
var (
	// ErrAborted is matched by envelope errors produced by Abort or context cancellation.
	ErrAborted = errors.New("kueri: operation aborted")

	// ErrThrottled is matched by envelope errors produced by the throttle plugin.
	ErrThrottled = errors.New("kueri: throttled")

	// ErrTransportMissing is reported by configuration validation when no transport is set.
	ErrTransportMissing = errors.New("kueri: no transport configured")
)

// Error is the structured error carried inside a Response envelope (or thrown,
// for programmer errors). Network, HTTP, Abort, Throttle and Plugin errors are
// funneled into Response.Error so callers have a single `if resp.Error != nil`
// path; Programmer errors panic at call time instead.
type Error struct {
	Type      string
	Message   string
	Cause     error
	Status    int
	Body      any
	Operation OperationType
	Path      string
	QueryKey  string
	Plugin    string
	Timestamp time.Time
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Plugin != "" {
		msg = fmt.Sprintf("%s [plugin %s]", msg, e.Plugin)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == ErrAborted {
		return e.Type == ErrorTypeAbort
	}
	if target == ErrThrottled {
		return e.Type == ErrorTypeThrottle
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsAbort reports whether err represents a cancelled operation.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted)
}

// IsTransient reports whether err represents a failure that might succeed on
// retry: network errors, throttling, 5xx responses and 429. Aborts, other 4xx
// responses and programmer errors are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return true // unclassified transport error, assume retryable
	}
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeThrottle:
		return true
	case ErrorTypeHTTP:
		return e.Status >= 500 || e.Status == 429
	default:
		return false
	}
}

func newAbortError(op OperationType, path, key string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeAbort,
		Message:   "operation aborted",
		Cause:     cause,
		Operation: op,
		Path:      path,
		QueryKey:  key,
		Timestamp: time.Now(),
	}
}

func newNetworkError(op OperationType, path, key string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeNetwork,
		Message:   "transport request failed",
		Cause:     cause,
		Operation: op,
		Path:      path,
		QueryKey:  key,
		Timestamp: time.Now(),
	}
}

func newHTTPError(op OperationType, path, key string, status int, body any) *Error {
	return &Error{
		Type:      ErrorTypeHTTP,
		Message:   "server returned non-ok status",
		Status:    status,
		Body:      body,
		Operation: op,
		Path:      path,
		QueryKey:  key,
		Timestamp: time.Now(),
	}
}

func newPluginError(op OperationType, path, key, plugin string, recovered any) *Error {
	return &Error{
		Type:      ErrorTypePlugin,
		Message:   fmt.Sprintf("recovered panic: %v", recovered),
		Operation: op,
		Path:      path,
		QueryKey:  key,
		Plugin:    plugin,
		Timestamp: time.Now(),
	}
}

// programmerError builds the error used for synchronous panics on malformed
// calls. Callers are expected to fix the call site, not recover.
func programmerError(format string, args ...any) *Error {
	return &Error{
		Type:      ErrorTypeProgrammer,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

package kueri

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
)

// staticTransport resolves every call with the given data.
func staticTransport(data any) Transport {
	return func(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
		return &TransportResponse{OK: true, Status: 200, Data: data}, nil
	}
}

// countingTransport wraps a transport with an atomic call counter.
type countingTransport struct {
	calls atomic.Int64
	inner Transport
}

func newCountingTransport(inner Transport) *countingTransport {
	return &countingTransport{inner: inner}
}

func (ct *countingTransport) Transport() Transport {
	return func(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
		ct.calls.Add(1)
		return ct.inner(ctx, req)
	}
}

func (ct *countingTransport) Calls() int64 { return ct.calls.Load() }

// newTestClient builds a valid client around the given transport.
func newTestClient(t *testing.T, transport Transport, opts ...Option) *Client {
	t.Helper()
	client := New(append([]Option{WithTransport(transport)}, opts...)...)
	if !client.IsValid() {
		t.Fatalf("client configuration invalid: %v", client.ValidationError())
	}
	return client
}

// queryOf parses the query portion of a transport request URL.
func queryOf(t *testing.T, rawURL string) url.Values {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("failed to parse transport URL %q: %v", rawURL, err)
	}
	return u.Query()
}

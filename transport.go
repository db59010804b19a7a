package kueri

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// NewHTTPTransport builds a JSON Transport over net/http. Request bodies are
// JSON-encoded, response bodies JSON-decoded when the Content-Type says so
// (raw bytes otherwise). Context cancellation propagates to the underlying
// request, which is how Abort reaches the wire.
func NewHTTPTransport(client *http.Client) Transport {
	if client == nil {
		client = &http.Client{}
	}
	return func(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
		var body io.Reader
		if req.Body != nil {
			raw, err := json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
			body = bytes.NewReader(raw)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
		if err != nil {
			return nil, err
		}
		for key, values := range req.Headers {
			for _, v := range values {
				httpReq.Header.Add(key, v)
			}
		}
		if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		httpResp, err := client.Do(httpReq)
		if err != nil {
			// surface the cancellation itself so the controller classifies
			// it as an abort, not a network failure
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		defer func() { _ = httpResp.Body.Close() }()

		raw, err := io.ReadAll(httpResp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		resp := &TransportResponse{
			OK:      httpResp.StatusCode >= 200 && httpResp.StatusCode < 300,
			Status:  httpResp.StatusCode,
			Headers: httpResp.Header,
		}
		if len(raw) > 0 {
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err == nil {
				resp.Data = decoded
			} else {
				resp.Data = string(raw)
			}
		}
		return resp, nil
	}
}

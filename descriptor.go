package kueri

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is the descriptor consumed by the core: an explicit
// {segments, method, options} triple built with ordinary function calls.
// Segments starting with ':' are path parameters resolved from
// Options.Params at execute time.
type Request struct {
	Segments []string
	Method   string
	Options  RequestOptions
}

// NewRequest starts a request descriptor for the given path segments.
//
//	kueri.NewRequest("users", ":id").Get()
func NewRequest(segments ...string) *RequestBuilder {
	return &RequestBuilder{req: Request{Segments: segments, Method: http.MethodGet}}
}

// RequestBuilder accumulates descriptor fields. All methods return the
// builder for chaining; Build validates and returns the descriptor.
type RequestBuilder struct {
	req Request
}

// Get sets the method to GET.
func (b *RequestBuilder) Get() *RequestBuilder { b.req.Method = http.MethodGet; return b }

// Post sets the method to POST.
func (b *RequestBuilder) Post() *RequestBuilder { b.req.Method = http.MethodPost; return b }

// Put sets the method to PUT.
func (b *RequestBuilder) Put() *RequestBuilder { b.req.Method = http.MethodPut; return b }

// Patch sets the method to PATCH.
func (b *RequestBuilder) Patch() *RequestBuilder { b.req.Method = http.MethodPatch; return b }

// Delete sets the method to DELETE.
func (b *RequestBuilder) Delete() *RequestBuilder { b.req.Method = http.MethodDelete; return b }

// Method sets an arbitrary method verb.
func (b *RequestBuilder) Method(m string) *RequestBuilder {
	b.req.Method = strings.ToUpper(m)
	return b
}

// Param supplies a value for a ":name" path segment.
func (b *RequestBuilder) Param(name, value string) *RequestBuilder {
	if b.req.Options.Params == nil {
		b.req.Options.Params = map[string]string{}
	}
	b.req.Options.Params[name] = value
	return b
}

// Query adds a query parameter.
func (b *RequestBuilder) Query(name, value string) *RequestBuilder {
	if b.req.Options.Query == nil {
		b.req.Options.Query = url.Values{}
	}
	b.req.Options.Query.Add(name, value)
	return b
}

// Body sets the request body.
func (b *RequestBuilder) Body(v any) *RequestBuilder {
	b.req.Options.Body = v
	return b
}

// Header adds a request header.
func (b *RequestBuilder) Header(key, value string) *RequestBuilder {
	if b.req.Options.Headers == nil {
		b.req.Options.Headers = http.Header{}
	}
	b.req.Options.Headers.Add(key, value)
	return b
}

// Tags overrides the path-derived invalidation tags.
func (b *RequestBuilder) Tags(tags ...string) *RequestBuilder {
	b.req.Options.Tags = tags
	return b
}

// StaleTime overrides the cache plugin's freshness window for this request.
func (b *RequestBuilder) StaleTime(d time.Duration) *RequestBuilder {
	b.req.Options.StaleTime = d
	return b
}

// Disabled prevents automatic execution on Mount.
func (b *RequestBuilder) Disabled() *RequestBuilder {
	b.req.Options.Enabled = Bool(false)
	return b
}

// Dedupe overrides the default deduplication policy for this request.
func (b *RequestBuilder) Dedupe(enabled bool) *RequestBuilder {
	b.req.Options.Dedupe = Bool(enabled)
	return b
}

// RevalidateOnInvalidate toggles tag-driven refetch for a mounted read.
func (b *RequestBuilder) RevalidateOnInvalidate(enabled bool) *RequestBuilder {
	b.req.Options.RevalidateOnInvalidate = Bool(enabled)
	return b
}

// PluginOption sets one option value for the named plugin.
func (b *RequestBuilder) PluginOption(plugin, key string, value any) *RequestBuilder {
	if b.req.Options.PluginOptions == nil {
		b.req.Options.PluginOptions = map[string]map[string]any{}
	}
	if b.req.Options.PluginOptions[plugin] == nil {
		b.req.Options.PluginOptions[plugin] = map[string]any{}
	}
	b.req.Options.PluginOptions[plugin][key] = value
	return b
}

// Build returns the descriptor. It panics with a Programmer error when the
// descriptor is structurally invalid (no segments, empty segment): that is a
// bug at the call site, not a runtime condition.
func (b *RequestBuilder) Build() *Request {
	if len(b.req.Segments) == 0 {
		panic(programmerError("request descriptor has no path segments"))
	}
	for _, s := range b.req.Segments {
		if s == "" {
			panic(programmerError("request descriptor has an empty path segment"))
		}
	}
	req := b.req
	return &req
}

// resolvePath expands ":name" segments from params and returns the resolved
// path. A missing parameter panics with a Programmer error.
func resolvePath(segments []string, params map[string]string) string {
	var sb strings.Builder
	for _, seg := range segments {
		sb.WriteByte('/')
		if strings.HasPrefix(seg, ":") {
			name := seg[1:]
			value, ok := params[name]
			if !ok || value == "" {
				panic(programmerError("missing required path parameter %q", name))
			}
			sb.WriteString(url.PathEscape(value))
			continue
		}
		sb.WriteString(seg)
	}
	return sb.String()
}

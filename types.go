package kueri

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// OperationType identifies the kind of call a controller drives.
type OperationType string

const (
	OperationRead         OperationType = "read"
	OperationWrite        OperationType = "write"
	OperationInfiniteRead OperationType = "infiniteRead"
)

// Response is the normalized envelope every operation resolves to. Data and
// Error are never both populated.
type Response struct {
	Data    any
	Error   error
	Status  int
	Headers http.Header
}

// TransportRequest is the fully resolved request handed to a Transport.
type TransportRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Body    any
}

// TransportResponse is the raw result a Transport resolves with before the
// controller normalizes it into a Response envelope.
type TransportResponse struct {
	OK      bool
	Status  int
	Headers http.Header
	Data    any
}

// Transport performs the actual network call. It must honor ctx cancellation
// by returning ctx.Err(). The core treats it as opaque.
type Transport func(ctx context.Context, req *TransportRequest) (*TransportResponse, error)

// RequestOptions carries the per-request knobs consumed by the core and by
// plugins. The zero value is usable.
type RequestOptions struct {
	// Params resolves ":name" path segments.
	Params map[string]string
	// Query is appended to the resolved path in canonical (sorted) order.
	Query url.Values
	// Body is serialized by the transport for mutating verbs.
	Body any
	// Headers are passed through to the transport.
	Headers http.Header
	// Tags overrides the path-derived invalidation tags.
	Tags []string
	// StaleTime overrides the cache plugin's default freshness window.
	// Zero means "use the plugin default".
	StaleTime time.Duration
	// Enabled gates automatic execution on Mount. Nil means enabled.
	Enabled *bool
	// Dedupe overrides the dedup plugin's default policy. Nil means the
	// operation-type default (reads dedupe, writes do not).
	Dedupe *bool
	// RevalidateOnInvalidate re-executes a mounted read when one of its tags
	// is invalidated. Nil means enabled for reads.
	RevalidateOnInvalidate *bool
	// PluginOptions holds per-plugin option maps keyed by plugin name.
	PluginOptions map[string]map[string]any
}

func (o *RequestOptions) enabled() bool {
	return o == nil || o.Enabled == nil || *o.Enabled
}

func (o *RequestOptions) revalidateOnInvalidate() bool {
	return o == nil || o.RevalidateOnInvalidate == nil || *o.RevalidateOnInvalidate
}

// pluginOptions returns the option map for a named plugin, never nil.
func (o *RequestOptions) pluginOptions(name string) map[string]any {
	if o == nil || o.PluginOptions == nil {
		return map[string]any{}
	}
	if m, ok := o.PluginOptions[name]; ok && m != nil {
		return m
	}
	return map[string]any{}
}

// Next invokes the remainder of the middleware chain. The innermost Next is
// the transport call itself.
type Next func() (*Response, error)

// Middleware wraps the transport call. It may short-circuit by returning a
// synthesized response without calling next, or post-process next's result.
type Middleware func(pctx *PluginContext, next Next) (*Response, error)

// Lifecycle hooks are invoked directly by the controller, in plugin priority
// order, independent of the middleware chain.
type Lifecycle struct {
	OnMount   func(pctx *PluginContext)
	OnUpdate  func(pctx *PluginContext)
	OnUnmount func(pctx *PluginContext)
}

// Plugin describes one unit of cross-cutting behavior. Created once at client
// construction and immutable thereafter.
type Plugin struct {
	Name       string
	Operations []OperationType
	// Priority orders the middleware chain: lower wraps outer, higher wraps
	// inner (closer to the transport). Defaults to 0.
	Priority      int
	Middleware    Middleware
	Lifecycle     *Lifecycle
	AfterResponse func(pctx *PluginContext, resp *Response)
	// Exports publishes named values other plugins retrieve through
	// PluginContext.Plugins.
	Exports func(pctx *PluginContext) map[string]any
	// InstanceAPI contributes methods to the handle returned to the caller.
	InstanceAPI func(ic *InstanceContext) map[string]any
}

func (p *Plugin) supports(op OperationType) bool {
	for _, o := range p.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// PluginContext is the per-invocation mutable bag threaded through middleware,
// lifecycle hooks and afterResponse callbacks.
type PluginContext struct {
	// Context carries cancellation for the in-flight call.
	Context   context.Context
	Operation OperationType
	Method    string
	Path      string
	QueryKey  string
	Tags      []string
	Options   *RequestOptions
	// Forced marks a refetch that must bypass cache freshness checks.
	Forced bool
	// Response is populated once the middleware chain has resolved.
	Response   *Response
	State      *StateManager
	Events     *EventEmitter
	Plugins    *PluginRegistry
	InstanceID string
	Logger     Logger
	Metrics    *MetricsCollector
}

// PluginOptions returns the caller-supplied option map for the named plugin.
func (pc *PluginContext) PluginOptions(name string) map[string]any {
	return pc.Options.pluginOptions(name)
}

// Endpoint returns the method+path label used for logging and metrics.
func (pc *PluginContext) Endpoint() string {
	return pc.Method + " " + pc.Path
}

// InstanceContext is handed to InstanceAPI factories; it exposes the
// controller surface a plugin method may need without coupling to the
// controller type.
type InstanceContext struct {
	Operation  OperationType
	QueryKey   string
	Tags       []string
	InstanceID string
	State      *StateManager
	Events     *EventEmitter
	Execute    func(ctx context.Context) *Response
	Abort      func()
}

// PluginRegistry gives middleware access to other plugins' exports.
type PluginRegistry struct {
	exports map[string]map[string]any
}

// Get returns the named plugin's exports, never nil.
func (r *PluginRegistry) Get(name string) map[string]any {
	if r == nil || r.exports == nil {
		return map[string]any{}
	}
	if m, ok := r.exports[name]; ok && m != nil {
		return m
	}
	return map[string]any{}
}

// Option configures a Client.
type Option func(*Client)

// Bool is a convenience for the *bool fields on RequestOptions.
func Bool(v bool) *bool { return &v }

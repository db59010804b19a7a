package kueri

import (
	"fmt"
	"sort"
)

// Built-in plugin priorities. Lower wraps outer, higher wraps inner: the
// throttle gate is deliberately the last check before the transport so it
// blocks even forced refetches that bypassed the cache.
const (
	PriorityCache      = 0
	PriorityInvalidate = 20
	PriorityDedup      = 50
	PriorityRetry      = 70
	PriorityThrottle   = 100
)

// PluginExecutor holds the registered plugins, orders them and runs the
// middleware chain, lifecycle hooks and afterResponse callbacks.
type PluginExecutor struct {
	plugins []*Plugin // ascending priority, stable by registration order
	byName  map[string]*Plugin
	logger  Logger
	metrics *MetricsCollector
}

// NewPluginExecutor creates an empty executor.
func NewPluginExecutor(logger Logger, metrics *MetricsCollector) *PluginExecutor {
	return &PluginExecutor{byName: make(map[string]*Plugin), logger: logger, metrics: metrics}
}

// Register validates and adds a plugin. Plugins are immutable once
// registered.
func (ex *PluginExecutor) Register(p *Plugin) error {
	if p == nil {
		return fmt.Errorf("kueri: nil plugin")
	}
	if p.Name == "" {
		return fmt.Errorf("kueri: plugin has no name")
	}
	if _, exists := ex.byName[p.Name]; exists {
		return fmt.Errorf("kueri: plugin %q registered twice", p.Name)
	}
	if len(p.Operations) == 0 {
		return fmt.Errorf("kueri: plugin %q declares no operations", p.Name)
	}
	for _, op := range p.Operations {
		switch op {
		case OperationRead, OperationWrite, OperationInfiniteRead:
		default:
			return fmt.Errorf("kueri: plugin %q declares unknown operation %q", p.Name, op)
		}
	}
	ex.byName[p.Name] = p
	ex.plugins = append(ex.plugins, p)
	sort.SliceStable(ex.plugins, func(i, j int) bool {
		return ex.plugins[i].Priority < ex.plugins[j].Priority
	})
	return nil
}

// Plugin returns a registered plugin by name.
func (ex *PluginExecutor) Plugin(name string) (*Plugin, bool) {
	p, ok := ex.byName[name]
	return p, ok
}

// pluginsFor lists the plugins supporting op in chain order.
func (ex *PluginExecutor) pluginsFor(op OperationType) []*Plugin {
	out := make([]*Plugin, 0, len(ex.plugins))
	for _, p := range ex.plugins {
		if p.supports(op) {
			out = append(out, p)
		}
	}
	return out
}

// Exports builds the cross-plugin registry for one invocation. Later
// (higher-priority) plugins win on name collision.
func (ex *PluginExecutor) Exports(pctx *PluginContext) *PluginRegistry {
	reg := &PluginRegistry{exports: make(map[string]map[string]any)}
	for _, p := range ex.pluginsFor(pctx.Operation) {
		if p.Exports == nil {
			continue
		}
		reg.exports[p.Name] = p.Exports(pctx)
	}
	return reg
}

// Run executes the onion-composed middleware chain around transport.
// Plugins wrap in ascending priority order: the first (lowest priority)
// plugin sees the call first and the transport last. A middleware may
// short-circuit by not calling next.
func (ex *PluginExecutor) Run(pctx *PluginContext, transport Next) (*Response, error) {
	chain := ex.pluginsFor(pctx.Operation)
	next := transport
	for i := len(chain) - 1; i >= 0; i-- {
		p := chain[i]
		if p.Middleware == nil {
			continue
		}
		inner := next
		mw := p.Middleware
		next = func() (*Response, error) {
			return mw(pctx, inner)
		}
	}
	return next()
}

// Lifecycle hook identifiers used by RunLifecycle.
type lifecycleHook int

const (
	hookMount lifecycleHook = iota
	hookUpdate
	hookUnmount
)

// RunLifecycle invokes one lifecycle hook on every plugin supporting the
// operation, in priority order. A panicking hook is recovered and logged so
// one faulty plugin cannot take down the controller.
func (ex *PluginExecutor) RunLifecycle(hook lifecycleHook, pctx *PluginContext) {
	for _, p := range ex.pluginsFor(pctx.Operation) {
		if p.Lifecycle == nil {
			continue
		}
		var fn func(*PluginContext)
		switch hook {
		case hookMount:
			fn = p.Lifecycle.OnMount
		case hookUpdate:
			fn = p.Lifecycle.OnUpdate
		case hookUnmount:
			fn = p.Lifecycle.OnUnmount
		}
		if fn == nil {
			continue
		}
		ex.safeCall(p.Name, pctx, func() { fn(pctx) })
	}
}

// RunAfterResponse fires afterResponse on every eligible plugin once the
// chain has fully resolved, regardless of which middleware produced the
// response.
func (ex *PluginExecutor) RunAfterResponse(pctx *PluginContext, resp *Response) {
	for _, p := range ex.pluginsFor(pctx.Operation) {
		if p.AfterResponse == nil {
			continue
		}
		cb := p.AfterResponse
		ex.safeCall(p.Name, pctx, func() { cb(pctx, resp) })
	}
}

// InstanceAPIs merges the InstanceAPI contributions for one handle. Later
// (higher-priority) plugins win on method-name collision.
func (ex *PluginExecutor) InstanceAPIs(op OperationType, ic *InstanceContext) map[string]any {
	api := make(map[string]any)
	for _, p := range ex.pluginsFor(op) {
		if p.InstanceAPI == nil {
			continue
		}
		for name, fn := range p.InstanceAPI(ic) {
			api[name] = fn
		}
	}
	return api
}

func (ex *PluginExecutor) safeCall(plugin string, pctx *PluginContext, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if ex.metrics != nil {
				ex.metrics.RecordPluginPanic(plugin)
			}
			if ex.logger != nil {
				ex.logger.Error("plugin hook panicked", "plugin", plugin, "endpoint", pctx.Endpoint(), "panic", r)
			}
		}
	}()
	fn()
}

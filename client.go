package kueri

import (
	"time"
)

// Client is the request-orchestration runtime: it owns the state manager,
// event emitter and plugin executor for one logical consumer and hands out
// operation controllers. It is safe for concurrent use.
type Client struct {
	transport Transport
	baseURL   string
	keyFunc   QueryKeyFunc
	staleTime time.Duration

	state    *StateManager
	emitter  *EventEmitter
	executor *PluginExecutor
	logger   Logger
	metrics  *MetricsCollector

	defaultPlugins  bool
	pendingPlugins  []*Plugin
	validationError error
}

// New constructs a Client using the provided functional options. Unless
// disabled, the default plugin set (cache, dedup, invalidate) is registered
// so reads are cached and coalesced and writes invalidate by tag out of the
// box. A best effort validation is performed; call IsValid / ValidationError
// for errors.
func New(options ...Option) *Client {
	c := &Client{
		keyFunc:        DefaultQueryKeyFunc,
		staleTime:      5 * time.Minute,
		defaultPlugins: true,
	}
	for _, option := range options {
		option(c)
	}

	c.emitter = NewEventEmitter()
	c.state = NewStateManager(c.emitter, c.keyFunc)
	c.executor = NewPluginExecutor(c.logger, c.metrics)

	plugins := c.pendingPlugins
	if c.defaultPlugins {
		plugins = append([]*Plugin{
			NewCachePlugin(WithCacheStaleTime(c.staleTime)),
			NewDedupPlugin(),
			NewInvalidatePlugin(),
		}, plugins...)
	}
	for _, p := range plugins {
		if err := c.executor.Register(p); err != nil {
			c.validationError = err
			break
		}
	}
	c.pendingPlugins = nil

	if c.validationError == nil && c.transport == nil {
		c.validationError = ErrTransportMissing
	}
	return c
}

// Read creates the controller for one read operation. Programmer errors in
// the descriptor (missing path parameter, no segments) panic here.
func (c *Client) Read(req *Request) *Controller {
	c.mustBeValid()
	return newController(c, OperationRead, req)
}

// Write creates the controller for one write operation. Writes are not
// deduplicated by default so side-effecting calls are never shared.
func (c *Client) Write(req *Request) *Controller {
	c.mustBeValid()
	return newController(c, OperationWrite, req)
}

// InfiniteRead creates the controller for one paginated read.
func (c *Client) InfiniteRead(req *Request, opts InfiniteOptions) *InfiniteController {
	c.mustBeValid()
	return newInfiniteController(c, req, opts)
}

// State exposes the state manager for external consumers (devtools,
// adapters). Mutating it directly bypasses plugin policy.
func (c *Client) State() *StateManager { return c.state }

// Events exposes the client-scoped event emitter.
func (c *Client) Events() *EventEmitter { return c.emitter }

// InvalidateTags marks every matching cache entry stale and notifies
// mounted controllers, without going through a write operation.
func (c *Client) InvalidateTags(tags ...string) {
	if c.metrics != nil {
		c.metrics.RecordInvalidation(tags)
	}
	c.state.InvalidateByTags(tags)
}

// Clear empties the cache, pending and meta maps. Used for logout and
// user-switch scenarios.
func (c *Client) Clear() {
	c.state.Clear()
}

// Close tears down the emitter; mounted controllers stop receiving events.
func (c *Client) Close() {
	c.emitter.Close()
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool { return c.validationError == nil }

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error { return c.validationError }

func (c *Client) mustBeValid() {
	if c.validationError != nil {
		panic(programmerError("client misconfigured: %v", c.validationError))
	}
}

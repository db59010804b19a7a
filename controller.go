package kueri

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ambiyansyah-risyal/kueri/internal/canonical"
)

// Status is the observable lifecycle state of a controller.
type Status string

const (
	// StatusIdle means no execution has happened yet.
	StatusIdle Status = "idle"
	// StatusLoading means the first fetch is in flight with no prior data.
	StatusLoading Status = "loading"
	// StatusFetching means a background refresh is in flight while cached
	// data is still shown.
	StatusFetching Status = "fetching"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
)

// State is the reactive snapshot exposed to calling UI code.
type State struct {
	Status Status
	Data   any
	Error  error
	Stale  bool
}

// Controller drives the lifecycle of a single read or write invocation. It
// ties the PluginExecutor and StateManager together for one QueryKey and is
// created only through Client.Read / Client.Write.
type Controller struct {
	client     *Client
	op         OperationType
	method     string
	segments   []string
	instanceID string

	// gate serializes Execute calls issued against this controller: a new
	// call waits for the previous one to settle (cross-controller callers
	// still coalesce through the dedup plugin's pending map).
	gate chan struct{}

	// mu guards the rebindable request identity (opts, path, queryKey, tags)
	// as well as the reactive fields: Update may rebind the identity while
	// an Execute is in flight, so every reader snapshots under mu.
	mu         sync.Mutex
	opts       *RequestOptions
	path       string
	queryKey   string
	tags       []string
	status     Status
	mounted    bool
	lastResp   *Response
	unsubState func()
	unsubs     []func()

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	api map[string]any
}

func newController(client *Client, op OperationType, req *Request) *Controller {
	if req == nil {
		panic(programmerError("nil request descriptor"))
	}
	if req.Method == "" {
		panic(programmerError("request descriptor has no method"))
	}
	opts := req.Options // copy
	path := resolvePath(req.Segments, opts.Params)
	tags := opts.Tags
	if len(tags) == 0 {
		tags = TagsFromPath(path)
	}

	c := &Controller{
		client:     client,
		op:         op,
		method:     req.Method,
		segments:   append([]string(nil), req.Segments...),
		opts:       &opts,
		path:       path,
		queryKey:   client.state.CreateQueryKey(req.Method, path, &opts),
		tags:       tags,
		instanceID: uuid.NewString(),
		gate:       make(chan struct{}, 1),
		status:     StatusIdle,
	}
	c.api = client.executor.InstanceAPIs(op, c.instanceContext())
	return c
}

// QueryKey returns the canonical key this controller currently operates on.
func (c *Controller) QueryKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryKey
}

// Tags returns the invalidation tags for this controller.
func (c *Controller) Tags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tags...)
}

// InstanceID returns the unique id of this controller instance.
func (c *Controller) InstanceID() string { return c.instanceID }

// API returns the merged InstanceAPI contributions of all registered plugins
// for this operation type. Callers assert the concrete function types, e.g.
// api["clearCache"].(func()).
func (c *Controller) API() map[string]any { return c.api }

// Mount subscribes the controller to its cache entry and to the invalidate
// and refetch topics, runs OnMount lifecycle hooks, and, when the request is
// enabled, executes once synchronously.
func (c *Controller) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	key := c.queryKey
	c.mu.Unlock()

	unsubState := c.client.state.Subscribe(key, c.onEntryChange)
	offInvalidate := c.client.emitter.On(TopicInvalidate, c.onInvalidate)
	offRefetch := c.client.emitter.On(TopicRefetch, c.onRefetch)

	c.mu.Lock()
	c.unsubState = unsubState
	c.unsubs = append(c.unsubs, offInvalidate, offRefetch)
	enabled := c.opts.enabled()
	c.mu.Unlock()

	pctx := c.pluginContext(ctx, false)
	c.client.executor.RunLifecycle(hookMount, pctx)

	if enabled {
		c.Execute(ctx)
	}
}

// Update replaces the request options for subsequent executions. The
// canonical identity is recomputed from the new options: params re-resolve
// the path, tags re-derive, and the QueryKey follows, so an update that
// changes what the controller requests also changes which cache entry it
// reads and writes. While mounted, the state subscription moves to the new
// key. Policy conflicts resolve last-write-wins per update pass: the
// supplied options replace the previous ones wholesale, then OnUpdate
// lifecycle hooks run and may override them again.
func (c *Controller) Update(ctx context.Context, opts RequestOptions) {
	path := resolvePath(c.segments, opts.Params)
	tags := opts.Tags
	if len(tags) == 0 {
		tags = TagsFromPath(path)
	}
	key := c.client.state.CreateQueryKey(c.method, path, &opts)

	c.mu.Lock()
	rekeyed := key != c.queryKey
	c.opts = &opts
	c.path = path
	c.tags = tags
	c.queryKey = key
	moveSub := rekeyed && c.mounted
	oldUnsub := c.unsubState
	c.mu.Unlock()

	if moveSub {
		if oldUnsub != nil {
			oldUnsub()
		}
		unsub := c.client.state.Subscribe(key, c.onEntryChange)
		c.mu.Lock()
		c.unsubState = unsub
		c.mu.Unlock()
	}

	pctx := c.pluginContext(ctx, false)
	c.client.executor.RunLifecycle(hookUpdate, pctx)
}

// Unmount removes all subscriptions and runs OnUnmount lifecycle hooks so
// plugins release any listeners they registered on mount.
func (c *Controller) Unmount(ctx context.Context) {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	unsubs := c.unsubs
	if c.unsubState != nil {
		unsubs = append(unsubs, c.unsubState)
	}
	c.unsubState = nil
	c.unsubs = nil
	c.mu.Unlock()

	for _, off := range unsubs {
		off()
	}
	pctx := c.pluginContext(ctx, false)
	c.client.executor.RunLifecycle(hookUnmount, pctx)
}

// Execute runs the full pipeline once: plugin middleware chain around the
// transport, envelope normalization, afterResponse hooks, state updates.
// Transport-level failures never surface as Go errors; they come back inside
// the envelope (`resp.Error`).
func (c *Controller) Execute(ctx context.Context) *Response {
	return c.execute(ctx, false)
}

// Refetch is Execute with cache freshness checks bypassed. The throttle
// plugin, when installed, still gates it.
func (c *Controller) Refetch(ctx context.Context) *Response {
	return c.execute(ctx, true)
}

// Abort cancels the in-flight transport call, if any. The pending call
// settles to an Abort envelope; the cache entry is left untouched.
func (c *Controller) Abort() {
	c.cancelMu.Lock()
	cancel := c.cancel
	c.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns the current reactive state for this controller's key.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	status := c.status
	lastResp := c.lastResp
	key := c.queryKey
	c.mu.Unlock()

	st := State{Status: status}
	if entry, ok := c.client.state.GetCache(key); ok {
		st.Data = entry.State.Data
		st.Stale = entry.Stale
	}
	if status == StatusError && lastResp != nil {
		st.Error = lastResp.Error
	}
	return st
}

func (c *Controller) execute(ctx context.Context, forced bool) *Response {
	if ctx == nil {
		ctx = context.Background()
	}

	// serialize with any previous execute on this controller
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return c.finishAborted(ctx.Err())
	}
	defer func() { <-c.gate }()

	cctx, cancel := context.WithCancel(ctx)
	c.cancelMu.Lock()
	c.cancel = cancel
	c.cancelMu.Unlock()
	defer func() {
		cancel()
		c.cancelMu.Lock()
		c.cancel = nil
		c.cancelMu.Unlock()
	}()

	// pctx snapshots the request identity; the rest of this pass keys off
	// the snapshot so a concurrent Update cannot shear it mid-flight
	pctx := c.pluginContext(cctx, forced)
	endpoint := pctx.Endpoint()

	entry, ok := c.client.state.GetCache(pctx.QueryKey)
	c.mu.Lock()
	if ok && entry.State.Data != nil {
		c.status = StatusFetching
	} else {
		c.status = StatusLoading
	}
	c.mu.Unlock()

	start := time.Now()
	if c.client.metrics != nil {
		c.client.metrics.RecordOperationStart(c.op, endpoint)
	}

	resp := c.runChain(pctx)
	pctx.Response = resp
	c.client.executor.RunAfterResponse(pctx, resp)

	c.mu.Lock()
	c.lastResp = resp
	if resp.Error != nil {
		c.status = StatusError
	} else {
		c.status = StatusSuccess
	}
	c.mu.Unlock()

	duration := time.Since(start)
	if c.client.metrics != nil {
		c.client.metrics.RecordOperationEnd(c.op, endpoint)
		c.client.metrics.RecordOperation(c.op, endpoint, resp.Status, duration)
		if resp.Error != nil {
			var e *Error
			if errors.As(resp.Error, &e) {
				c.client.metrics.RecordError(e.Type, c.op, endpoint)
			}
		}
	}
	if c.client.logger != nil {
		c.client.logger.Debug("operation settled",
			"operation", string(c.op), "endpoint", endpoint,
			"queryKey", pctx.QueryKey, "status", resp.Status,
			"error", resp.Error, "duration", duration)
	}
	return resp
}

// runChain executes the middleware chain and converts every failure mode
// into a normalized envelope. Programmer-error panics propagate; everything
// else is contained here so one faulty plugin cannot crash the host.
func (c *Controller) runChain(pctx *PluginContext) (resp *Response) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if pe, ok := r.(*Error); ok && pe.Type == ErrorTypeProgrammer {
					panic(pe)
				}
				resp = nil
				err = newPluginError(c.op, pctx.Path, pctx.QueryKey, "", r)
				if c.client.metrics != nil {
					c.client.metrics.RecordPluginPanic("middleware")
				}
				if c.client.logger != nil {
					c.client.logger.Error("middleware panicked", "queryKey", pctx.QueryKey, "panic", r)
				}
			}
		}()
		resp, err = c.client.executor.Run(pctx, func() (*Response, error) {
			return c.transportCall(pctx)
		})
	}()
	return c.normalize(pctx, resp, err)
}

// transportCall is the innermost link of the middleware chain. It resolves
// the URL, invokes the transport and folds its three outcomes (rejection,
// non-OK status, success) into the response envelope.
func (c *Controller) transportCall(pctx *PluginContext) (*Response, error) {
	opts := pctx.Options
	treq := &TransportRequest{
		Method:  pctx.Method,
		URL:     c.client.baseURL + pctx.Path,
		Headers: opts.Headers,
		Body:    opts.Body,
	}
	if encoded := canonical.EncodeQuery(opts.Query); encoded != "" {
		treq.URL += "?" + encoded
	}

	tr, err := c.client.transport(pctx.Context, treq)
	if err != nil {
		if pctx.Context.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &Response{Error: newAbortError(c.op, pctx.Path, pctx.QueryKey, err)}, nil
		}
		return &Response{Error: newNetworkError(c.op, pctx.Path, pctx.QueryKey, err)}, nil
	}
	if !tr.OK {
		return &Response{
			Error:   newHTTPError(c.op, pctx.Path, pctx.QueryKey, tr.Status, tr.Data),
			Status:  tr.Status,
			Headers: tr.Headers,
		}, nil
	}
	return &Response{Data: tr.Data, Status: tr.Status, Headers: tr.Headers}, nil
}

// normalize guarantees the envelope invariant: a non-nil response with
// either Data or Error, never both.
func (c *Controller) normalize(pctx *PluginContext, resp *Response, err error) *Response {
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return &Response{Error: e, Status: e.Status}
		}
		if pctx.Context.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &Response{Error: newAbortError(c.op, pctx.Path, pctx.QueryKey, err)}
		}
		return &Response{Error: newNetworkError(c.op, pctx.Path, pctx.QueryKey, err)}
	}
	if resp == nil {
		return &Response{Error: newNetworkError(c.op, pctx.Path, pctx.QueryKey, errors.New("middleware chain produced no response"))}
	}
	if resp.Error != nil {
		resp.Data = nil
	}
	return resp
}

func (c *Controller) finishAborted(cause error) *Response {
	c.mu.Lock()
	resp := &Response{Error: newAbortError(c.op, c.path, c.queryKey, cause)}
	c.lastResp = resp
	c.status = StatusError
	c.mu.Unlock()
	return resp
}

// pluginContext snapshots the current request identity under mu. Options is
// shared by pointer: Update replaces the pointer wholesale and never mutates
// the pointee, so the snapshot stays consistent.
func (c *Controller) pluginContext(ctx context.Context, forced bool) *PluginContext {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	opts := c.opts
	path := c.path
	key := c.queryKey
	tags := append([]string(nil), c.tags...)
	c.mu.Unlock()

	pctx := &PluginContext{
		Context:    ctx,
		Operation:  c.op,
		Method:     c.method,
		Path:       path,
		QueryKey:   key,
		Tags:       tags,
		Options:    opts,
		Forced:     forced,
		State:      c.client.state,
		Events:     c.client.emitter,
		InstanceID: c.instanceID,
		Logger:     c.client.logger,
		Metrics:    c.client.metrics,
	}
	pctx.Plugins = c.client.executor.Exports(pctx)
	return pctx
}

func (c *Controller) instanceContext() *InstanceContext {
	return &InstanceContext{
		Operation:  c.op,
		QueryKey:   c.queryKey,
		Tags:       c.tags,
		InstanceID: c.instanceID,
		State:      c.client.state,
		Events:     c.client.emitter,
		Execute:    func(ctx context.Context) *Response { return c.Execute(ctx) },
		Abort:      c.Abort,
	}
}

// onEntryChange keeps the controller status coherent when another writer
// mutates this key's entry.
func (c *Controller) onEntryChange(entry *CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry == nil {
		c.status = StatusIdle
		c.lastResp = nil
		return
	}
	if c.status == StatusIdle && entry.State.Data != nil {
		c.status = StatusSuccess
	}
}

// onInvalidate re-executes a mounted read whose tags intersect the
// invalidated set, when its revalidation policy allows it. The entry is
// already stale at this point, so the cache plugin treats it as a miss.
func (c *Controller) onInvalidate(ev Event) {
	if c.op != OperationRead {
		return
	}
	c.mu.Lock()
	mounted := c.mounted
	revalidate := c.opts.revalidateOnInvalidate()
	tags := c.tags
	c.mu.Unlock()
	if !mounted || !revalidate || !tagsIntersect(tags, ev.Tags) {
		return
	}
	c.Execute(context.Background())
}

// onRefetch re-executes on a refetch event targeting this key (or all keys).
func (c *Controller) onRefetch(ev Event) {
	if c.op != OperationRead {
		return
	}
	c.mu.Lock()
	mounted := c.mounted
	key := c.queryKey
	c.mu.Unlock()
	if !mounted {
		return
	}
	if ev.QueryKey != "" && ev.QueryKey != key {
		return
	}
	c.Refetch(context.Background())
}

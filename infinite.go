package kueri

import (
	"context"
	"net/url"
	"sync"

	"github.com/google/uuid"
)

// PageStatus is the per-page lifecycle state of an infinite read.
type PageStatus string

const (
	PagePending PageStatus = "pending"
	PageLoading PageStatus = "loading"
	PageSuccess PageStatus = "success"
	PageError   PageStatus = "error"
	PageStale   PageStatus = "stale"
)

// Page is one fetched page record: its status, result, and the query
// parameters that produced it.
type Page struct {
	Status PageStatus
	Data   any
	Error  error
	Params map[string]string
}

// InfiniteOptions configures continuation and merging for an infinite read.
type InfiniteOptions struct {
	// CanFetchNext decides whether another page exists after the last
	// response. Defaults to "no".
	CanFetchNext func(last *Response, pages []Page) bool
	// NextParams returns the query overrides for the next page, typically
	// derived from a cursor in the last response.
	NextParams func(last *Response, pages []Page) map[string]string
	// CanFetchPrev / PrevParams mirror the above for backwards pagination.
	CanFetchPrev func(first *Response, pages []Page) bool
	PrevParams   func(first *Response, pages []Page) map[string]string
	// Merge flattens all pages into one ordered item list. The default
	// concatenates pages' Data slices in fetch order.
	Merge func(pages []Page) []any
}

// InfiniteController drives a paginated read: an ordered list of page
// records fetched through the same plugin chain as single reads, each page
// keyed by its own page parameters.
type InfiniteController struct {
	client     *Client
	req        *Request
	opts       InfiniteOptions
	baseQuery  url.Values
	instanceID string

	mu    sync.Mutex
	pages []Page
	gate  chan struct{}
}

func newInfiniteController(client *Client, req *Request, opts InfiniteOptions) *InfiniteController {
	if req == nil {
		panic(programmerError("nil request descriptor"))
	}
	base := url.Values{}
	for k, vs := range req.Options.Query {
		base[k] = append([]string(nil), vs...)
	}
	return &InfiniteController{
		client:     client,
		req:        req,
		opts:       opts,
		baseQuery:  base,
		instanceID: uuid.NewString(),
		gate:       make(chan struct{}, 1),
	}
}

// Pages returns a snapshot of the page records in fetch order.
func (ic *InfiniteController) Pages() []Page {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return append([]Page(nil), ic.pages...)
}

// Items merges all successful pages into one ordered item list, first page
// to last.
func (ic *InfiniteController) Items() []any {
	pages := ic.Pages()
	if ic.opts.Merge != nil {
		return ic.opts.Merge(pages)
	}
	var items []any
	for _, p := range pages {
		if p.Status != PageSuccess {
			continue
		}
		if list, ok := p.Data.([]any); ok {
			items = append(items, list...)
			continue
		}
		if p.Data != nil {
			items = append(items, p.Data)
		}
	}
	return items
}

// Execute fetches the first page using the descriptor's own query.
func (ic *InfiniteController) Execute(ctx context.Context) *Response {
	ic.acquire(ctx)
	defer ic.release()

	resp, page := ic.fetchPage(ctx, nil, "first", false)
	ic.mu.Lock()
	ic.pages = []Page{page}
	ic.mu.Unlock()
	return resp
}

// CanFetchNext reports whether a next page exists per the continuation
// predicate and the last page fetched.
func (ic *InfiniteController) CanFetchNext() bool {
	if ic.opts.CanFetchNext == nil {
		return false
	}
	pages := ic.Pages()
	if len(pages) == 0 {
		return false
	}
	last := pages[len(pages)-1]
	if last.Status != PageSuccess {
		return false
	}
	return ic.opts.CanFetchNext(&Response{Data: last.Data}, pages)
}

// CanFetchPrev mirrors CanFetchNext for backwards pagination.
func (ic *InfiniteController) CanFetchPrev() bool {
	if ic.opts.CanFetchPrev == nil {
		return false
	}
	pages := ic.Pages()
	if len(pages) == 0 {
		return false
	}
	first := pages[0]
	if first.Status != PageSuccess {
		return false
	}
	return ic.opts.CanFetchPrev(&Response{Data: first.Data}, pages)
}

// FetchNext fetches one more page and appends it. Returns nil when no next
// page exists.
func (ic *InfiniteController) FetchNext(ctx context.Context) *Response {
	if !ic.CanFetchNext() {
		return nil
	}
	ic.acquire(ctx)
	defer ic.release()

	pages := ic.Pages()
	last := pages[len(pages)-1]
	params := ic.opts.NextParams(&Response{Data: last.Data}, pages)

	resp, page := ic.fetchPage(ctx, params, "next", false)
	ic.mu.Lock()
	ic.pages = append(ic.pages, page)
	ic.mu.Unlock()
	return resp
}

// FetchPrev fetches one page backwards and prepends it.
func (ic *InfiniteController) FetchPrev(ctx context.Context) *Response {
	if !ic.CanFetchPrev() {
		return nil
	}
	ic.acquire(ctx)
	defer ic.release()

	pages := ic.Pages()
	first := pages[0]
	params := ic.opts.PrevParams(&Response{Data: first.Data}, pages)

	resp, page := ic.fetchPage(ctx, params, "prev", false)
	ic.mu.Lock()
	ic.pages = append([]Page{page}, ic.pages...)
	ic.mu.Unlock()
	return resp
}

// Refetch replays the whole chain from the first page, re-evaluating the
// continuation predicate at every step: later pages' parameters may depend
// on earlier pages' results (cursors), so cached page inputs cannot be
// replayed blindly. It fetches at most as many pages as were loaded before.
func (ic *InfiniteController) Refetch(ctx context.Context) *Response {
	ic.acquire(ctx)
	defer ic.release()

	ic.mu.Lock()
	previous := len(ic.pages)
	ic.mu.Unlock()
	if previous == 0 {
		previous = 1
	}

	resp, page := ic.fetchPage(ctx, nil, "first", true)
	replayed := []Page{page}

	for len(replayed) < previous {
		last := replayed[len(replayed)-1]
		if last.Status != PageSuccess || ic.opts.CanFetchNext == nil ||
			!ic.opts.CanFetchNext(&Response{Data: last.Data}, replayed) {
			break
		}
		params := ic.opts.NextParams(&Response{Data: last.Data}, replayed)
		pageResp, nextPage := ic.fetchPage(ctx, params, "next", true)
		replayed = append(replayed, nextPage)
		resp = pageResp
	}

	ic.mu.Lock()
	ic.pages = replayed
	ic.mu.Unlock()
	return resp
}

// fetchPage runs one page through a fresh single-read controller so the
// full plugin chain (cache, dedup, retry...) applies per page.
func (ic *InfiniteController) fetchPage(ctx context.Context, params map[string]string, direction string, forced bool) (*Response, Page) {
	pageReq := *ic.req
	pageReq.Options.Query = url.Values{}
	for k, vs := range ic.baseQuery {
		pageReq.Options.Query[k] = append([]string(nil), vs...)
	}
	for k, v := range params {
		pageReq.Options.Query.Set(k, v)
	}

	if ic.client.metrics != nil {
		ic.client.metrics.RecordPageFetch(direction)
	}

	pc := newController(ic.client, OperationInfiniteRead, &pageReq)
	var resp *Response
	if forced {
		resp = pc.Refetch(ctx)
	} else {
		resp = pc.Execute(ctx)
	}

	page := Page{Params: params, Data: resp.Data, Error: resp.Error}
	if resp.Error != nil {
		page.Status = PageError
	} else {
		page.Status = PageSuccess
	}
	return resp, page
}

func (ic *InfiniteController) acquire(_ context.Context) {
	// page fetches are serialized; cancellation surfaces from the page fetch itself
	ic.gate <- struct{}{}
}

func (ic *InfiniteController) release() { <-ic.gate }

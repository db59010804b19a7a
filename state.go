package kueri

import (
	"context"
	"sync"
	"time"
)

// EntryState is the observable result snapshot held in a cache entry.
type EntryState struct {
	Data      any
	Error     error
	Timestamp time.Time
}

// CacheEntry is one cached result keyed by QueryKey. Stale marks the entry as
// no longer trustworthy, either by age or explicit invalidation.
type CacheEntry struct {
	State EntryState
	Tags  []string
	Stale bool
}

// clone returns a shallow copy so subscribers never observe in-place mutation.
func (e *CacheEntry) clone() *CacheEntry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Tags = append([]string(nil), e.Tags...)
	return &cp
}

// PendingCall is one in-flight transport invocation shared between a dedup
// owner and its waiters.
type PendingCall struct {
	done     chan struct{}
	response *Response
	err      error
}

// Wait blocks until the owning call completes or ctx cancels.
func (p *PendingCall) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-p.done:
		return p.response, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscriber is invoked on every state mutation for its key. A nil entry
// means the entry was removed (Clear or delete).
type Subscriber func(entry *CacheEntry)

// StateManager owns the cache map, pending-call map, meta store and
// subscriber sets for one client instance. It has no network awareness.
// A single mutex guards all four maps: the invalidate/notify paths touch
// more than one map and must be atomic across them.
type StateManager struct {
	mu          sync.RWMutex
	cache       map[string]*CacheEntry
	pending     map[string]*PendingCall
	meta        map[string]map[string]any
	subscribers map[string]map[int64]Subscriber
	nextSubID   int64

	emitter *EventEmitter
	keyFunc QueryKeyFunc
}

// NewStateManager creates an empty state manager emitting on the given
// emitter and deriving keys with keyFunc.
func NewStateManager(emitter *EventEmitter, keyFunc QueryKeyFunc) *StateManager {
	if keyFunc == nil {
		keyFunc = DefaultQueryKeyFunc
	}
	return &StateManager{
		cache:       make(map[string]*CacheEntry),
		pending:     make(map[string]*PendingCall),
		meta:        make(map[string]map[string]any),
		subscribers: make(map[string]map[int64]Subscriber),
		emitter:     emitter,
		keyFunc:     keyFunc,
	}
}

// CreateQueryKey derives the canonical key for a logical request. Pure and
// deterministic: identical requests yield identical keys regardless of
// option insertion order.
func (sm *StateManager) CreateQueryKey(method, path string, opts *RequestOptions) string {
	return sm.keyFunc(method, path, opts)
}

// GetCache returns a snapshot of the entry for key.
func (sm *StateManager) GetCache(key string) (*CacheEntry, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	entry, ok := sm.cache[key]
	if !ok {
		return nil, false
	}
	return entry.clone(), true
}

// SetCache fully replaces the entry's state and tags and resets Stale to
// false, then notifies the key's subscribers.
func (sm *StateManager) SetCache(key string, state EntryState, tags []string) {
	sm.mu.Lock()
	entry := &CacheEntry{State: state, Tags: append([]string(nil), tags...), Stale: false}
	sm.cache[key] = entry
	subs := sm.subscribersFor(key)
	snapshot := entry.clone()
	sm.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// SetStale flips the stale flag on an existing entry and notifies
// subscribers. Missing keys are ignored.
func (sm *StateManager) SetStale(key string, stale bool) {
	sm.mu.Lock()
	entry, ok := sm.cache[key]
	if !ok {
		sm.mu.Unlock()
		return
	}
	entry.Stale = stale
	subs := sm.subscribersFor(key)
	snapshot := entry.clone()
	sm.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// DeleteCache removes one entry and notifies subscribers with nil.
func (sm *StateManager) DeleteCache(key string) {
	sm.mu.Lock()
	_, existed := sm.cache[key]
	delete(sm.cache, key)
	subs := sm.subscribersFor(key)
	sm.mu.Unlock()

	if existed {
		for _, fn := range subs {
			fn(nil)
		}
	}
}

// EntriesByTags returns snapshots of every entry whose tags intersect the
// given set, keyed by QueryKey.
func (sm *StateManager) EntriesByTags(tags []string) map[string]*CacheEntry {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make(map[string]*CacheEntry)
	for key, entry := range sm.cache {
		if tagsIntersect(entry.Tags, tags) {
			out[key] = entry.clone()
		}
	}
	return out
}

// InvalidateByTags flips Stale on every entry whose tags intersect the given
// set, notifies subscribers, then emits an invalidate event carrying the tag
// list. It never refetches itself; refetching is the mounted controllers'
// decision when they observe the event.
func (sm *StateManager) InvalidateByTags(tags []string) []string {
	sm.mu.Lock()
	var matched []string
	notify := make(map[string][]Subscriber)
	snapshots := make(map[string]*CacheEntry)
	for key, entry := range sm.cache {
		if tagsIntersect(entry.Tags, tags) {
			entry.Stale = true
			matched = append(matched, key)
			notify[key] = sm.subscribersFor(key)
			snapshots[key] = entry.clone()
		}
	}
	sm.mu.Unlock()

	for key, subs := range notify {
		for _, fn := range subs {
			fn(snapshots[key])
		}
	}
	if sm.emitter != nil {
		sm.emitter.Emit(TopicInvalidate, Event{Tags: append([]string(nil), tags...)})
	}
	return matched
}

// Clear empties the cache, pending and meta maps. Used for logout and
// user-switch scenarios. Subscribers are notified with nil so mounted
// controllers drop ghost data; subscriptions themselves survive.
func (sm *StateManager) Clear() {
	sm.mu.Lock()
	keys := make([]string, 0, len(sm.cache))
	for key := range sm.cache {
		keys = append(keys, key)
	}
	sm.cache = make(map[string]*CacheEntry)
	sm.pending = make(map[string]*PendingCall)
	sm.meta = make(map[string]map[string]any)
	notify := make(map[string][]Subscriber, len(keys))
	for _, key := range keys {
		notify[key] = sm.subscribersFor(key)
	}
	sm.mu.Unlock()

	for _, subs := range notify {
		for _, fn := range subs {
			fn(nil)
		}
	}
}

// PendingCall returns the in-flight call for key, if any.
func (sm *StateManager) PendingCall(key string) (*PendingCall, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	p, ok := sm.pending[key]
	return p, ok
}

// BeginPending returns the pending call for key and whether the caller is
// its owner. The owner must settle the call with CompletePending; everyone
// else waits on the shared call.
func (sm *StateManager) BeginPending(key string) (*PendingCall, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if p, ok := sm.pending[key]; ok {
		return p, false
	}
	p := &PendingCall{done: make(chan struct{})}
	sm.pending[key] = p
	return p, true
}

// CompletePending settles the pending call for key, releasing all waiters,
// and removes it from the map.
func (sm *StateManager) CompletePending(key string, resp *Response, err error) {
	sm.mu.Lock()
	p, ok := sm.pending[key]
	delete(sm.pending, key)
	sm.mu.Unlock()
	if !ok {
		return
	}
	p.response = resp
	p.err = err
	close(p.done)
}

// Meta returns one plugin-contributed side value for key.
func (sm *StateManager) Meta(key, field string) (any, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	m, ok := sm.meta[key]
	if !ok {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}

// SetMeta stores one plugin-contributed side value for key. Meta lifecycle
// is independent of the cache entry's.
func (sm *StateManager) SetMeta(key, field string, value any) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.meta[key] == nil {
		sm.meta[key] = make(map[string]any)
	}
	sm.meta[key][field] = value
}

// ClearMeta removes all meta for key.
func (sm *StateManager) ClearMeta(key string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.meta, key)
}

// Subscribe registers cb for every state mutation of key and returns its
// unsubscribe func. Controllers subscribe on mount and unsubscribe on
// unmount.
func (sm *StateManager) Subscribe(key string, cb Subscriber) func() {
	if cb == nil {
		panic(programmerError("nil subscriber for key %q", key))
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.subscribers[key] == nil {
		sm.subscribers[key] = make(map[int64]Subscriber)
	}
	sm.nextSubID++
	id := sm.nextSubID
	sm.subscribers[key][id] = cb
	return func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		delete(sm.subscribers[key], id)
		if len(sm.subscribers[key]) == 0 {
			delete(sm.subscribers, key)
		}
	}
}

// subscribersFor snapshots the subscriber list for key. Caller must hold mu.
func (sm *StateManager) subscribersFor(key string) []Subscriber {
	set := sm.subscribers[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]Subscriber, 0, len(set))
	for _, fn := range set {
		out = append(out, fn)
	}
	return out
}

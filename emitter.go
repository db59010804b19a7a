package kueri

import (
	"slices"
	"sync"
)

// Event topics emitted by the core and its built-in plugins.
const (
	// TopicInvalidate fires after InvalidateByTags marks entries stale.
	TopicInvalidate = "invalidate"
	// TopicRefetch asks mounted controllers matching the event to re-execute.
	TopicRefetch = "refetch"
)

// Event is the payload delivered to topic handlers.
type Event struct {
	Topic    string
	QueryKey string
	Tags     []string
	Payload  any
}

// EventHandler receives events for a subscribed topic.
type EventHandler func(Event)

// EventEmitter is a named-topic pub/sub scoped to one client instance. It is
// owned by the client and torn down with it; there is no process-wide
// listener registry.
type EventEmitter struct {
	mu       sync.RWMutex
	handlers map[string]map[int64]EventHandler
	nextID   int64
	closed   bool
}

// NewEventEmitter creates an empty emitter.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{handlers: make(map[string]map[int64]EventHandler)}
}

// On registers a handler for a topic and returns its unsubscribe func.
func (e *EventEmitter) On(topic string, h EventHandler) func() {
	if h == nil {
		panic(programmerError("nil event handler for topic %q", topic))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return func() {}
	}
	if e.handlers[topic] == nil {
		e.handlers[topic] = make(map[int64]EventHandler)
	}
	e.nextID++
	id := e.nextID
	e.handlers[topic][id] = h
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[topic], id)
	}
}

// Emit delivers ev to every handler registered for the topic. Handlers run
// synchronously in registration order; a panicking handler does not stop the
// remaining ones.
func (e *EventEmitter) Emit(topic string, ev Event) {
	ev.Topic = topic
	e.mu.RLock()
	hs := make([]EventHandler, 0, len(e.handlers[topic]))
	ids := make([]int64, 0, len(e.handlers[topic]))
	for id := range e.handlers[topic] {
		ids = append(ids, id)
	}
	// map iteration order is random; deliver in subscription order
	slices.Sort(ids)
	for _, id := range ids {
		hs = append(hs, e.handlers[topic][id])
	}
	e.mu.RUnlock()

	for _, h := range hs {
		func() {
			defer func() { _ = recover() }()
			h(ev)
		}()
	}
}

// Close drops all handlers; further On calls are no-ops.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.handlers = make(map[string]map[int64]EventHandler)
}

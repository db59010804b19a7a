package kueri

import (
	"sync"
	"time"
)

// PollPluginName is the registry name of the opt-in polling plugin.
const PollPluginName = "poll"

// NewPollPlugin builds an interval-polling plugin driven entirely by
// lifecycle hooks: OnMount starts a ticker goroutine emitting refetch events
// for the controller's QueryKey, OnUnmount stops it. A per-request
// "interval" plugin option (time.Duration) overrides the default.
func NewPollPlugin(interval time.Duration) *Plugin {
	if interval <= 0 {
		panic(programmerError("poll plugin needs a positive interval, got %v", interval))
	}

	var mu sync.Mutex
	stops := make(map[string]chan struct{})

	return &Plugin{
		Name:       PollPluginName,
		Operations: []OperationType{OperationRead},
		Lifecycle: &Lifecycle{
			OnMount: func(pctx *PluginContext) {
				every := interval
				if v, ok := pctx.PluginOptions(PollPluginName)["interval"].(time.Duration); ok && v > 0 {
					every = v
				}

				stop := make(chan struct{})
				mu.Lock()
				if prev, ok := stops[pctx.InstanceID]; ok {
					close(prev)
				}
				stops[pctx.InstanceID] = stop
				mu.Unlock()

				events := pctx.Events
				key := pctx.QueryKey
				go func() {
					ticker := time.NewTicker(every)
					defer ticker.Stop()
					for {
						select {
						case <-ticker.C:
							events.Emit(TopicRefetch, Event{QueryKey: key})
						case <-stop:
							return
						}
					}
				}()
			},
			OnUnmount: func(pctx *PluginContext) {
				mu.Lock()
				if stop, ok := stops[pctx.InstanceID]; ok {
					close(stop)
					delete(stops, pctx.InstanceID)
				}
				mu.Unlock()
			},
		},
	}
}

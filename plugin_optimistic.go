package kueri

import "time"

// OptimisticPluginName is the registry name of the opt-in optimistic-update plugin.
const OptimisticPluginName = "optimistic"

// MetaOptimistic is the meta field flagging an entry whose current data is
// an optimistic overlay not yet confirmed by the server.
const MetaOptimistic = "optimistic"

// Per-request option keys consumed from PluginOptions(OptimisticPluginName):
//
//	"queryKey" (string)        — the read entry to overlay
//	"update"   (func(any) any) — maps current cached data to the overlay
//
// Example:
//
//	req := kueri.NewRequest("posts").Post().
//	    Body(post).
//	    PluginOption(kueri.OptimisticPluginName, "queryKey", listKey).
//	    PluginOption(kueri.OptimisticPluginName, "update", func(cur any) any { ... }).
//	    Build()

// NewOptimisticPlugin builds the optimistic-update middleware for writes: it
// applies the caller's update function to the targeted cache entry before
// the transport resolves, marks the overlay in the meta store, and rolls the
// entry back if the write settles with an error.
func NewOptimisticPlugin() *Plugin {
	return &Plugin{
		Name:       OptimisticPluginName,
		Operations: []OperationType{OperationWrite},
		Priority:   PriorityInvalidate + 1,
		Middleware: func(pctx *PluginContext, next Next) (*Response, error) {
			opts := pctx.PluginOptions(OptimisticPluginName)
			key, _ := opts["queryKey"].(string)
			update, _ := opts["update"].(func(any) any)
			if key == "" || update == nil {
				return next()
			}

			prev, had := pctx.State.GetCache(key)
			var current any
			var tags []string
			if had {
				current = prev.State.Data
				tags = prev.Tags
			}

			pctx.State.SetCache(key, EntryState{Data: update(current), Timestamp: time.Now()}, tags)
			pctx.State.SetMeta(key, MetaOptimistic, true)

			resp, err := next()

			if err != nil || resp == nil || resp.Error != nil {
				// roll the overlay back; the entry must reflect reality again
				if had {
					pctx.State.SetCache(key, prev.State, prev.Tags)
				} else {
					pctx.State.DeleteCache(key)
				}
				if pctx.Logger != nil {
					pctx.Logger.Debug("optimistic overlay rolled back", "queryKey", key)
				}
			}
			pctx.State.SetMeta(key, MetaOptimistic, false)
			return resp, err
		},
	}
}

package kueri

// DedupPluginName is the registry name of the built-in deduplication plugin.
const DedupPluginName = "dedup"

// NewDedupPlugin builds the deduplication middleware: before invoking next
// it consults the StateManager's pending-call map, and when another call for
// the same QueryKey is already in flight it waits on that shared call
// instead of issuing a second transport invocation. Reads dedupe by default;
// writes never pass through this plugin so side-effecting calls are never
// shared accidentally.
func NewDedupPlugin() *Plugin {
	return &Plugin{
		Name:       DedupPluginName,
		Operations: []OperationType{OperationRead, OperationInfiniteRead},
		Priority:   PriorityDedup,
		Middleware: func(pctx *PluginContext, next Next) (*Response, error) {
			if pctx.Options != nil && pctx.Options.Dedupe != nil && !*pctx.Options.Dedupe {
				return next()
			}
			key := pctx.QueryKey

			pending, owner := pctx.State.BeginPending(key)
			if !owner {
				if pctx.Metrics != nil {
					pctx.Metrics.RecordDedupHit(pctx.Operation, pctx.Endpoint())
				}
				if pctx.Logger != nil {
					pctx.Logger.Debug("dedup hit", "queryKey", key)
				}
				return pending.Wait(pctx.Context)
			}

			// if an inner middleware panics, settle the pending call before
			// re-panicking so waiters are not stranded
			defer func() {
				if r := recover(); r != nil {
					pctx.State.CompletePending(key, nil,
						newPluginError(pctx.Operation, pctx.Path, key, DedupPluginName, r))
					panic(r)
				}
			}()

			resp, err := next()
			pctx.State.CompletePending(key, resp, err)
			return resp, err
		},
	}
}

package kueri

// InvalidatePluginName is the registry name of the built-in invalidation plugin.
const InvalidatePluginName = "invalidate"

// NewInvalidatePlugin builds the tag-invalidation plugin for writes: once a
// write settles successfully, every cache entry whose tags intersect the
// write's tags is flagged stale and an invalidate event is emitted. Mounted
// readers with intersecting tags decide for themselves whether to refetch.
// Runs in afterResponse so it fires regardless of which middleware produced
// the response.
func NewInvalidatePlugin() *Plugin {
	return &Plugin{
		Name:       InvalidatePluginName,
		Operations: []OperationType{OperationWrite},
		Priority:   PriorityInvalidate,
		AfterResponse: func(pctx *PluginContext, resp *Response) {
			if resp == nil || resp.Error != nil {
				return
			}
			tags := pctx.Tags
			if len(tags) == 0 {
				return
			}
			if pctx.Metrics != nil {
				pctx.Metrics.RecordInvalidation(tags)
			}
			if pctx.Logger != nil {
				pctx.Logger.Debug("invalidating tags", "tags", tags, "endpoint", pctx.Endpoint())
			}
			pctx.State.InvalidateByTags(tags)
		},
		InstanceAPI: func(ic *InstanceContext) map[string]any {
			return map[string]any{
				"invalidate": func(tags ...string) {
					if len(tags) == 0 {
						tags = ic.Tags
					}
					ic.State.InvalidateByTags(tags)
				},
			}
		},
	}
}

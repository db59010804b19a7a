package kueri

import (
	"context"
	"time"
)

// CachePluginName is the registry name of the built-in cache plugin.
const CachePluginName = "cache"

// metaCacheStatus stores the envelope status alongside a cache entry so a
// cache hit reproduces the original status code.
const metaCacheStatus = "cache:status"

type cacheConfig struct {
	staleTime  time.Duration
	operations []OperationType
}

// CacheOption configures the cache plugin.
type CacheOption func(*cacheConfig)

// WithCacheStaleTime sets the default freshness window. A per-request
// StaleTime takes precedence.
func WithCacheStaleTime(d time.Duration) CacheOption {
	return func(cfg *cacheConfig) {
		cfg.staleTime = d
	}
}

// WithCacheOperations overrides which operation types the plugin applies to.
func WithCacheOperations(ops ...OperationType) CacheOption {
	return func(cfg *cacheConfig) {
		cfg.operations = ops
	}
}

// NewCachePlugin builds the cache middleware: it short-circuits with cached
// data when the entry exists, is not stale and is younger than the effective
// staleTime; otherwise it calls next and stores the fresh result. Error
// responses are deliberately not cached so a transient failure does not
// poison subsequent reads.
func NewCachePlugin(opts ...CacheOption) *Plugin {
	cfg := &cacheConfig{
		staleTime:  5 * time.Minute,
		operations: []OperationType{OperationRead, OperationInfiniteRead},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Plugin{
		Name:       CachePluginName,
		Operations: cfg.operations,
		Priority:   PriorityCache,
		Middleware: func(pctx *PluginContext, next Next) (*Response, error) {
			key := pctx.QueryKey
			staleTime := cfg.staleTime
			if pctx.Options != nil && pctx.Options.StaleTime > 0 {
				staleTime = pctx.Options.StaleTime
			}

			if !pctx.Forced {
				if entry, ok := pctx.State.GetCache(key); ok &&
					!entry.Stale && entry.State.Data != nil &&
					time.Since(entry.State.Timestamp) < staleTime {
					if pctx.Metrics != nil {
						pctx.Metrics.RecordCacheHit(pctx.Operation, pctx.Endpoint())
					}
					if pctx.Logger != nil {
						pctx.Logger.Debug("cache hit", "queryKey", key)
					}
					status := 200
					if v, ok := pctx.State.Meta(key, metaCacheStatus); ok {
						if s, ok := v.(int); ok {
							status = s
						}
					}
					return &Response{Data: entry.State.Data, Status: status}, nil
				}
				if pctx.Metrics != nil {
					pctx.Metrics.RecordCacheMiss(pctx.Operation, pctx.Endpoint())
				}
			}

			resp, err := next()
			if err == nil && resp != nil && resp.Error == nil && resp.Data != nil {
				pctx.State.SetCache(key, EntryState{Data: resp.Data, Timestamp: time.Now()}, pctx.Tags)
				pctx.State.SetMeta(key, metaCacheStatus, resp.Status)
			}
			return resp, err
		},
		Exports: func(pctx *PluginContext) map[string]any {
			return map[string]any{
				// isFresh lets other plugins check entry freshness without
				// duplicating the staleTime policy.
				"isFresh": func(key string) bool {
					entry, ok := pctx.State.GetCache(key)
					return ok && !entry.Stale && time.Since(entry.State.Timestamp) < cfg.staleTime
				},
			}
		},
		InstanceAPI: func(ic *InstanceContext) map[string]any {
			return map[string]any{
				"clearCache": func() {
					ic.State.DeleteCache(ic.QueryKey)
					ic.State.ClearMeta(ic.QueryKey)
				},
				"prefetch": func(ctx context.Context) *Response {
					return ic.Execute(ctx)
				},
			}
		},
	}
}

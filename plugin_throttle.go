package kueri

import (
	"sync/atomic"
	"time"
)

// ThrottlePluginName is the registry name of the opt-in throttle plugin.
const ThrottlePluginName = "throttle"

// NewThrottlePlugin builds a token-bucket gate. It registers at the highest
// built-in priority so it is the last check before the transport call:
// cache hits and deduplicated waiters pass, but every real network attempt —
// including forced refetches and individual retry attempts — must take a
// token or settle to a Throttle error envelope.
func NewThrottlePlugin(maxTokens int, refillRate time.Duration) *Plugin {
	if maxTokens <= 0 {
		panic(programmerError("throttle plugin needs a positive token count, got %d", maxTokens))
	}
	bucket := newTokenBucket(maxTokens, refillRate)

	return &Plugin{
		Name:       ThrottlePluginName,
		Operations: []OperationType{OperationRead, OperationWrite, OperationInfiniteRead},
		Priority:   PriorityThrottle,
		Middleware: func(pctx *PluginContext, next Next) (*Response, error) {
			allowed := bucket.Allow()
			if pctx.Metrics != nil {
				pctx.Metrics.RecordThrottleTokens("default", bucket.Tokens())
			}
			if !allowed {
				if pctx.Logger != nil {
					pctx.Logger.Warn("throttled", "endpoint", pctx.Endpoint())
				}
				return &Response{Error: &Error{
					Type:      ErrorTypeThrottle,
					Message:   "throttle gate refused the call",
					Operation: pctx.Operation,
					Path:      pctx.Path,
					QueryKey:  pctx.QueryKey,
					Timestamp: time.Now(),
				}}, nil
			}
			return next()
		},
		Exports: func(_ *PluginContext) map[string]any {
			return map[string]any{
				"tokens": bucket.Tokens,
			}
		},
	}
}

// tokenBucket is a lock-free token bucket refilled by elapsed time.
type tokenBucket struct {
	tokens     int64
	maxTokens  int64
	refillRate time.Duration
	lastRefill int64
}

func newTokenBucket(maxTokens int, refillRate time.Duration) *tokenBucket {
	return &tokenBucket{
		tokens:     int64(maxTokens),
		maxTokens:  int64(maxTokens),
		refillRate: refillRate,
		lastRefill: time.Now().UnixNano(),
	}
}

// Allow consumes one token, refilling first.
func (tb *tokenBucket) Allow() bool {
	tb.refill()
	for {
		current := atomic.LoadInt64(&tb.tokens)
		if current <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&tb.tokens, current, current-1) {
			return true
		}
	}
}

// Tokens returns the currently available token count.
func (tb *tokenBucket) Tokens() int {
	tb.refill()
	return int(atomic.LoadInt64(&tb.tokens))
}

func (tb *tokenBucket) refill() {
	if tb.refillRate <= 0 {
		return
	}
	now := time.Now().UnixNano()
	for {
		last := atomic.LoadInt64(&tb.lastRefill)
		toAdd := (now - last) / int64(tb.refillRate)
		if toAdd == 0 {
			return
		}
		if !atomic.CompareAndSwapInt64(&tb.lastRefill, last, last+toAdd*int64(tb.refillRate)) {
			continue
		}
		for {
			current := atomic.LoadInt64(&tb.tokens)
			next := current + toAdd
			if next > tb.maxTokens {
				next = tb.maxTokens
			}
			if atomic.CompareAndSwapInt64(&tb.tokens, current, next) {
				return
			}
		}
	}
}

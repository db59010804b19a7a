package kueri

import (
	"time"

	"github.com/ambiyansyah-risyal/kueri/internal/backoff"
)

// RetryPluginName is the registry name of the opt-in retry plugin.
const RetryPluginName = "retry"

type retryConfig struct {
	maxRetries int
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	strategy   backoff.Strategy
	operations []OperationType
}

// RetryOption configures the retry plugin.
type RetryOption func(*retryConfig)

// WithRetryMax sets the maximum number of retry attempts.
func WithRetryMax(n int) RetryOption {
	return func(cfg *retryConfig) { cfg.maxRetries = n }
}

// WithRetryBackoff sets the initial and maximum backoff durations.
func WithRetryBackoff(initial, max time.Duration) RetryOption {
	return func(cfg *retryConfig) {
		cfg.initial = initial
		cfg.max = max
	}
}

// WithRetryMultiplier sets the exponential multiplier.
func WithRetryMultiplier(f float64) RetryOption {
	return func(cfg *retryConfig) { cfg.multiplier = f }
}

// WithRetryJitter sets the jitter factor (0.0 to 1.0).
func WithRetryJitter(f float64) RetryOption {
	return func(cfg *retryConfig) { cfg.jitter = f }
}

// WithRetryStrategy swaps the backoff strategy (e.g. decorrelated jitter).
func WithRetryStrategy(s backoff.Strategy) RetryOption {
	return func(cfg *retryConfig) { cfg.strategy = s }
}

// WithRetryOperations overrides which operation types are retried. Retrying
// writes is opt-in twice over: the caller must both install the plugin and
// name OperationWrite here.
func WithRetryOperations(ops ...OperationType) RetryOption {
	return func(cfg *retryConfig) { cfg.operations = ops }
}

// NewRetryPlugin builds the opt-in retry middleware. It re-invokes the inner
// chain on transient failures (network errors, 5xx, 429) with exponential
// backoff and jitter, honoring cancellation between attempts. Aborts and
// non-transient errors are returned as-is.
func NewRetryPlugin(opts ...RetryOption) *Plugin {
	cfg := &retryConfig{
		maxRetries: 3,
		initial:    100 * time.Millisecond,
		max:        10 * time.Second,
		multiplier: 2.0,
		jitter:     0.1,
		strategy:   backoff.ExponentialJitter{},
		operations: []OperationType{OperationRead, OperationInfiniteRead},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Plugin{
		Name:       RetryPluginName,
		Operations: cfg.operations,
		Priority:   PriorityRetry,
		Middleware: func(pctx *PluginContext, next Next) (*Response, error) {
			for attempt := 0; ; attempt++ {
				resp, err := next()

				retryable := false
				if err == nil && resp != nil && resp.Error != nil {
					retryable = IsTransient(resp.Error)
				}
				if !retryable || attempt >= cfg.maxRetries {
					return resp, err
				}

				if pctx.Metrics != nil {
					pctx.Metrics.RecordRetry(pctx.Operation, pctx.Endpoint(), attempt+1)
				}
				delay := cfg.strategy.Calculate(attempt, cfg.initial, cfg.max, cfg.multiplier, cfg.jitter)
				if pctx.Logger != nil {
					pctx.Logger.Info("scheduling retry",
						"attempt", attempt+1, "maxRetries", cfg.maxRetries,
						"backoff", delay, "endpoint", pctx.Endpoint())
				}

				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-pctx.Context.Done():
					timer.Stop()
					return &Response{Error: newAbortError(pctx.Operation, pctx.Path, pctx.QueryKey, pctx.Context.Err())}, nil
				}
			}
		},
	}
}

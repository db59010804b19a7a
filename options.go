package kueri

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WithTransport sets the transport the innermost middleware link calls.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithHTTPClient installs the JSON net/http transport over the given client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.transport = NewHTTPTransport(client)
	}
}

// WithBaseURL prefixes every resolved path with the given base URL.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = base
	}
}

// WithQueryKeyFunc overrides query key canonicalization.
func WithQueryKeyFunc(fn QueryKeyFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.keyFunc = fn
		}
	}
}

// WithStaleTime sets the default freshness window used by the default cache
// plugin. Per-request StaleTime takes precedence.
func WithStaleTime(d time.Duration) Option {
	return func(c *Client) {
		c.staleTime = d
	}
}

// WithPlugins registers additional plugins at construction.
func WithPlugins(plugins ...*Plugin) Option {
	return func(c *Client) {
		c.pendingPlugins = append(c.pendingPlugins, plugins...)
	}
}

// WithoutDefaultPlugins skips the default cache/dedup/invalidate set; only
// explicitly supplied plugins run.
func WithoutDefaultPlugins() Option {
	return func(c *Client) {
		c.defaultPlugins = false
	}
}

// WithLogger sets the logger used by the core and handed to plugins.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables the stdlib-backed logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.logger = NewSimpleLogger()
	}
}

// WithZerolog adapts the given zerolog logger.
func WithZerolog(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = NewZerologLogger(logger)
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

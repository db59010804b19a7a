// Package kueri is a client-side request-orchestration runtime: it wraps
// arbitrary network calls with pluggable cross-cutting behavior and exposes
// reactive state to calling UI code.
//
//   - Canonical query keys (method + path + sorted query + body hash)
//   - In-memory cache with staleTime freshness and per-request overrides
//   - Request de-duplication (merges concurrent identical in-flight calls)
//   - Tag-based invalidation with coarse-to-fine path-derived tags
//   - Paginated (infinite) reads with ordered page records and cursor replay
//   - Plugin middleware chain, lifecycle hooks and cross-plugin exports
//   - Opt-in retry (exponential/decorrelated jitter), throttling, polling
//     and optimistic updates
//   - Prometheus metrics and structured logging (zerolog adapter included)
//
// Design goals:
//   - One uniform result path: transport failures resolve into the response
//     envelope (`resp.Error`), never into panics or returned Go errors
//   - Single writer per cache key: all suspension happens at the transport
//     boundary, so plugins observe consistent state
//   - Small surface area: functional options configure everything
//
// Typical usage:
//
//	client := kueri.New(
//	    kueri.WithHTTPClient(http.DefaultClient),
//	    kueri.WithBaseURL("https://api.example.com"),
//	    kueri.WithStaleTime(30*time.Second),
//	)
//	users := client.Read(kueri.NewRequest("users", ":id").Param("id", "1").Build())
//	users.Mount(ctx)
//	state := users.Snapshot() // {Status, Data, Error, Stale}
//
// Writes invalidate by tag out of the box: a successful POST /posts marks
// every cached entry tagged "posts" stale, and mounted readers refetch.
package kueri

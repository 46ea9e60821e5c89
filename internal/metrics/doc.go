// Package metrics defines the Prometheus instrumentation for the media
// catalog: cache hit/miss counters, extraction and store-query latency
// histograms, prune and migration counters, and gauges for worker count
// and on-disk store size.
//
// Metrics are registered with promauto at package load and served by
// Serve on a dedicated listener when metrics are enabled.
package metrics

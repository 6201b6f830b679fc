// Package metrics provides Prometheus instrumentation for thumbcache.
//
// All metrics are prefixed with "thumbcache_".
//
// # Metric Categories
//
// ## Cache
//
//   - ThumbnailLookupsTotal: lookups by result (hit, fail, cache_only_miss, ...)
//   - ThumbnailGenerationsTotal: generation attempts by outcome
//   - ThumbnailGenerationDuration: phase timings (decode, resize, encode, total)
//   - ThumbnailDecodeByCodec: decodes per codec and status
//   - ThumbnailCacheFiles / ThumbnailCacheBytes: per-tier footprint, refreshed
//     by the Collector
//
// ## Filesystem
//
// Retry counters for NFS stale file handles, recorded through the
// filesystem.Observer returned by NewFilesystemObserver.
//
// ## HTTP
//
// Request counters and durations recorded by the middleware package.
//
// # Latency quantiles
//
// LatencyTracker keeps DDSketch quantiles per operation for human-readable
// summaries; it complements rather than replaces the histograms.
package metrics

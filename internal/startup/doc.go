// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] layers three sources, later ones winning:
//
//  1. built-in defaults
//  2. the TOML file named by THUMBCACHE_CONFIG, if set
//  3. environment variables
//
// Recognised keys (TOML name / environment variable):
//
//   - media_dir / MEDIA_DIR: root that HTTP paths are resolved against (default: ~/Pictures)
//   - cache_home: cache root holding thumbnails/ (default: XDG_CACHE_HOME or ~/.cache)
//   - database_path / DATABASE_PATH: image index (default: <cache_home>/thumbcache/images.db)
//   - lock_dir / THUMBCACHE_LOCK_DIR: per-key lock files (default: <cache_home>/thumbcache/locks)
//   - cross_process_locking / CROSS_PROCESS_LOCKING: use file locks (default: true)
//   - max_source_size / MAX_SOURCE_SIZE: largest source accepted, e.g. "200MB" (default: unlimited)
//   - workers / THUMBNAIL_WORKERS: batch generation workers (default: one per CPU, at most 8)
//   - port / PORT: HTTP server port (default: 8080)
//   - metrics_enabled / METRICS_ENABLED: expose /metrics (default: true)
//   - log_health_checks / LOG_HEALTH_CHECKS: log /healthz requests (default: true)
//   - software: value written to Software attributes (default: thumbcache)
//
// LOG_LEVEL, DEBUG, MEMORY_LIMIT, MEMORY_RATIO and GOMEMLIMIT are read by the
// logging and memory packages directly.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// The Log* functions print the banner-style sections used by the server
// binary so that startup output reads the same across releases.
package startup

// Package logging provides a small leveled logger for thumbcache.
//
// It supports the following log levels:
//   - DEBUG: cache hits, codec selection, per-tier writes
//   - INFO: startup configuration, batch summaries
//   - WARN: failed writes, unreadable sources, lock errors
//   - ERROR: conditions an operator should look at
//
// The level is read once from LOG_LEVEL (or DEBUG=true) and can be
// overridden with SetLevel.
package logging

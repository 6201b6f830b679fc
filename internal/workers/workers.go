package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that pins the thumbnail
// worker count regardless of available CPUs.
const EnvOverride = "THUMBNAIL_WORKERS"

// Count returns the number of workers to use for thumbnail generation.
// It respects container CPU limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for decode/resize heavy batches (CPU-bound)
//   - 2.0 for batches dominated by cache-hit reads (I/O-bound)
//   - 1.5 for mixed batches
//
// The limit parameter caps the worker count. Use 0 for no limit.
// THUMBNAIL_WORKERS overrides the computed value (still capped by limit).
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return capAt(count, limit)
		}
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)
	if workers < 1 {
		workers = 1
	}

	return capAt(workers, limit)
}

// Resolve returns configured when it is positive, otherwise the CPU-bound
// default capped at limit.
func Resolve(configured, limit int) int {
	if configured > 0 {
		return capAt(configured, limit)
	}
	return ForCPU(limit)
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/docker/go-units"

	"thumbcache/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest is left for libvips, which allocates outside the Go heap.
const DefaultMemoryRatio = 0.80

// ConfigResult describes what ConfigureFromEnv did.
type ConfigResult struct {
	Configured     bool
	Source         string // "GOMEMLIMIT", "MEMORY_LIMIT" or "none"
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets GOMEMLIMIT from the container limit. Call it before
// significant allocations.
//
//   - GOMEMLIMIT, when set, wins and is only reported.
//   - MEMORY_LIMIT is the container limit, either raw bytes (as the
//     Kubernetes Downward API provides it) or a size such as "2GiB".
//   - MEMORY_RATIO is the share of MEMORY_LIMIT for the heap, in (0, 1].
func ConfigureFromEnv() ConfigResult {
	result := ConfigResult{Source: "none"}

	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.Source = "GOMEMLIMIT"
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	raw := os.Getenv("MEMORY_LIMIT")
	if raw == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT will not be configured automatically")
		return result
	}

	memLimit, err := ParseSize(raw)
	if err != nil || memLimit <= 0 {
		logging.Warn("Failed to parse MEMORY_LIMIT %q: %v", raw, err)
		return result
	}
	result.ContainerLimit = memLimit

	ratio := DefaultMemoryRatio
	if s := os.Getenv("MEMORY_RATIO"); s != "" {
		parsed, err := strconv.ParseFloat(s, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using default %.2f", s, err, DefaultMemoryRatio)
		case parsed <= 0 || parsed > 1:
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0), using default %.2f", s, DefaultMemoryRatio)
		default:
			ratio = parsed
		}
	}
	result.Ratio = ratio

	goMemLimit := int64(float64(memLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	result.Configured = true
	result.Source = "MEMORY_LIMIT"
	result.GoMemLimit = goMemLimit

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
		FormatBytes(goMemLimit), ratio*100, FormatBytes(memLimit))
	return result
}

// ParseSize parses a byte count such as "1073741824", "512m" or "2GiB".
// Suffixes are binary.
func ParseSize(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	return units.RAMInBytes(s)
}

// FormatBytes renders b with binary units, e.g. "1.5GiB".
func FormatBytes(b int64) string {
	return units.BytesSize(float64(b))
}

package startup

import (
	"thumbcache/internal/locking"
	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
	"thumbcache/internal/thumbnail"
)

// Components is the thumbnail stack built from a Config.
type Components struct {
	Service  *thumbnail.Service
	Decoder  *thumbnail.Decoder
	LockKind string
}

// NewThumbnailService wires the cache store, decoder and service. File
// locks are used when cross-process locking is enabled and the lock
// directory can be created; otherwise locks are in-process only.
func NewThumbnailService(config *Config) Components {
	var group locking.Group = locking.NewMemLock()
	lockKind := "in-process"
	if config.CrossProcessLocking {
		fl, err := locking.NewFileLock(config.LockDir)
		if err != nil {
			logging.Warn("File locks unavailable (%v), using in-process locks", err)
		} else {
			group = fl
			lockKind = "file locks in " + fl.Dir()
		}
	}

	store := thumbnail.NewStore(config.CacheHome, thumbnail.WithLockGroup(group))
	decoder := thumbnail.NewDecoder(thumbnail.WithMaxSourceSize(config.MaxSourceBytes))
	svc := thumbnail.New(store, decoder,
		thumbnail.WithSoftware(config.Software),
		thumbnail.WithLatencyTracker(metrics.NewLatencyTracker(0.01)),
	)
	return Components{Service: svc, Decoder: decoder, LockKind: lockKind}
}

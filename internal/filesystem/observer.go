package filesystem

// Observer records filesystem operation metrics. The metrics package
// provides the Prometheus-backed implementation; keeping the interface here
// avoids an import cycle.
type Observer interface {
	// ObserveOperation records duration and error status for a filesystem operation.
	// operation is one of "stat", "open", "read".
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveRetryDuration(retryOp, volume string, durationSeconds float64)
	ObserveStaleError(retryOp, volume string)
}

// defaultObserver is nil until SetObserver is called; recording is skipped
// while it is nil.
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}

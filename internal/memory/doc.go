// Package memory keeps thumbnail generation inside a container's memory
// limit.
//
// ConfigureFromEnv derives GOMEMLIMIT from MEMORY_LIMIT (raw bytes from the
// Kubernetes Downward API, or a size such as "2GiB") and MEMORY_RATIO.
// The default ratio leaves a fifth of the limit for libvips, whose buffers
// live outside the Go heap.
//
// Monitor samples heap usage and pauses batch generation above a critical
// mark until usage falls below the high-water mark:
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	batch := svc.NewBatch(thumbnail.WithThrottle(monitor))
package memory

// Package workers sizes the goroutine pools used for batch thumbnail
// generation.
//
// Worker counts follow GOMAXPROCS, which tracks container CPU quotas, and
// can be pinned with the THUMBNAIL_WORKERS environment variable:
//
//	n := workers.ForCPU(8)          // decode-heavy batch, at most 8 workers
//	n = workers.Resolve(cfg.Workers, 8) // configured value wins when set
package workers

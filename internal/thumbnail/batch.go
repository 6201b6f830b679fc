package thumbnail

import (
	"context"
	"image"

	"golang.org/x/sync/errgroup"

	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
	"thumbcache/internal/workers"
)

// Throttle applies backpressure between dispatches. memory.Monitor
// satisfies it.
type Throttle interface {
	WaitIfPaused() bool
}

// Batch populates thumbnails for a list view: cached entries are returned
// at once and misses are generated on a bounded pool.
type Batch struct {
	svc        *Service
	workers    int
	throttle   Throttle
	locateOnly bool
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithWorkers bounds concurrent generations. Values below 1 pick a CPU
// based default.
func WithWorkers(n int) BatchOption {
	return func(b *Batch) {
		b.workers = n
	}
}

// WithThrottle pauses dispatching while t reports pressure.
func WithThrottle(t Throttle) BatchOption {
	return func(b *Batch) {
		b.throttle = t
	}
}

// WithoutImages makes results carry no Image. Hits are found by locating
// the cache file, so cached thumbnails are never decoded; callers that only
// count or link entries use this.
func WithoutImages() BatchOption {
	return func(b *Batch) {
		b.locateOnly = true
	}
}

// NewBatch returns a Batch that generates through s.
func (s *Service) NewBatch(opts ...BatchOption) *Batch {
	b := &Batch{svc: s}
	for _, opt := range opts {
		opt(b)
	}
	if b.workers < 1 {
		b.workers = workers.ForCPU(8)
	}
	return b
}

// Populate does a cache-only pass over paths and returns the entries it
// could settle immediately: Large hits, and Fail entries with OK false.
// Everything else is generated in the background and delivered on pending,
// which is closed once all dispatched work finishes. Results arrive in
// completion order.
//
// Cancelling ctx stops dispatching; generations already started still run
// to completion and deliver their result.
func (b *Batch) Populate(ctx context.Context, paths []string) (hits []Result, pending <-chan Result) {
	metrics.BatchRunsTotal.Inc()

	var misses []string
	for _, p := range paths {
		key := KeyFor(p)
		if img, ok := b.lookup(p, true); ok {
			hits = append(hits, Result{Path: p, Key: key, Image: img, OK: true})
			metrics.BatchItemsTotal.WithLabelValues("cached").Inc()
			continue
		}
		if _, failed := b.svc.store.Locate(key, TierFail); failed {
			hits = append(hits, Result{Path: p, Key: key})
			metrics.BatchItemsTotal.WithLabelValues("failed").Inc()
			continue
		}
		misses = append(misses, p)
	}

	out := make(chan Result, len(misses))
	go b.generate(ctx, misses, out)

	logging.Debug("Batch: %d cached, %d queued for generation", len(hits), len(misses))
	return hits, out
}

func (b *Batch) lookup(path string, cacheOnly bool) (image.Image, bool) {
	if b.locateOnly {
		_, ok := b.svc.ThumbnailPath(path, TierLarge, cacheOnly)
		return nil, ok
	}
	return b.svc.GetThumbnail(path, cacheOnly)
}

func (b *Batch) generate(ctx context.Context, paths []string, out chan<- Result) {
	defer close(out)

	var g errgroup.Group
	g.SetLimit(b.workers)

	for i, p := range paths {
		if ctx.Err() != nil {
			metrics.BatchItemsTotal.WithLabelValues("skipped").Add(float64(len(paths) - i))
			logging.Debug("Batch cancelled with %d items not started", len(paths)-i)
			break
		}
		if b.throttle != nil {
			b.throttle.WaitIfPaused()
		}

		g.Go(func() error {
			img, ok := b.lookup(p, false)
			if ok {
				metrics.BatchItemsTotal.WithLabelValues("generated").Inc()
			} else {
				metrics.BatchItemsTotal.WithLabelValues("failed").Inc()
			}
			out <- Result{Path: p, Key: KeyFor(p), Image: img, OK: ok}
			return nil
		})
	}

	_ = g.Wait()
}

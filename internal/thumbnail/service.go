package thumbnail

import (
	"image"
	"time"

	"golang.org/x/sync/singleflight"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
)

// Service is the entry point for callers that want thumbnails. Lookups are
// lock-free existence checks; generation is serialised per key by the
// store and deduplicated within the process.
type Service struct {
	store    *Store
	decoder  ImageDecoder
	gen      *Generator
	flight   singleflight.Group
	latency  *metrics.LatencyTracker
	retry    filesystem.RetryConfig
	software string
}

// Option configures a Service.
type Option func(*Service)

// WithSoftware sets the Software attribute written into thumbnails.
func WithSoftware(name string) Option {
	return func(s *Service) {
		s.software = name
	}
}

// WithLatencyTracker records generation phase latencies into lt.
func WithLatencyTracker(lt *metrics.LatencyTracker) Option {
	return func(s *Service) {
		s.latency = lt
	}
}

// WithSourceRetry sets the NFS retry policy used when the service touches
// source files directly.
func WithSourceRetry(cfg filesystem.RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg
	}
}

// Result is a completed thumbnail request.
type Result struct {
	Path  string
	Key   Key
	Image image.Image
	OK    bool
}

// New returns a Service over store and decoder.
func New(store *Store, decoder ImageDecoder, opts ...Option) *Service {
	s := &Service{
		store:    store,
		decoder:  decoder,
		retry:    filesystem.DefaultRetryConfig(),
		software: DefaultSoftware,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.gen = NewGenerator(store, decoder, s.software, s.latency)
	s.gen.retry = s.retry
	return s
}

// Store returns the underlying cache store.
func (s *Service) Store() *Store {
	return s.store
}

// Decoder returns the decoder used for generation.
func (s *Service) Decoder() ImageDecoder {
	return s.decoder
}

// Latency returns the latency tracker, which may be nil.
func (s *Service) Latency() *metrics.LatencyTracker {
	return s.latency
}

// Generate settles the cache entry for path. Concurrent calls for the same
// path in this process share one attempt.
func (s *Service) Generate(path string) Outcome {
	key := KeyFor(path)
	v, _, _ := s.flight.Do(string(key), func() (interface{}, error) {
		return s.gen.Generate(path), nil
	})
	return v.(Outcome)
}

// GetThumbnail returns the Large thumbnail for path. A Fail entry yields
// nothing without touching the source. On a miss it generates
// synchronously unless cacheOnly is set.
func (s *Service) GetThumbnail(path string, cacheOnly bool) (image.Image, bool) {
	return s.GetThumbnailTier(path, TierLarge, cacheOnly)
}

// GetThumbnailTier is GetThumbnail for a chosen tier.
func (s *Service) GetThumbnailTier(path string, tier Tier, cacheOnly bool) (image.Image, bool) {
	p, ok := s.ThumbnailPath(path, tier, cacheOnly)
	if !ok {
		return nil, false
	}

	start := time.Now()
	img, err := s.store.Load(KeyFor(path), tier)
	s.latency.Record("load", time.Since(start))
	if err != nil {
		logging.Warn("Failed to load cached thumbnail %s: %v", p, err)
		return nil, false
	}
	return img, true
}

// ThumbnailPath returns the file backing the tier entry for path,
// generating it first unless cacheOnly is set. Asking for TierFail only
// reports whether a sentinel exists.
func (s *Service) ThumbnailPath(path string, tier Tier, cacheOnly bool) (string, bool) {
	key := KeyFor(path)

	if _, ok := s.store.Locate(key, TierFail); ok {
		metrics.ThumbnailLookupsTotal.WithLabelValues("fail").Inc()
		if tier == TierFail {
			return s.store.Path(key, TierFail), true
		}
		logging.Debug("Fail-thumbnail exists, won't regenerate: %s", path)
		return "", false
	}
	if tier == TierFail {
		return "", false
	}

	if p, ok := s.store.Locate(key, tier); ok {
		metrics.ThumbnailLookupsTotal.WithLabelValues("hit").Inc()
		return p, true
	}
	if cacheOnly {
		metrics.ThumbnailLookupsTotal.WithLabelValues("cache_only_miss").Inc()
		return "", false
	}

	metrics.ThumbnailLookupsTotal.WithLabelValues("miss").Inc()
	if s.Generate(path) != OutcomeSuccess {
		return "", false
	}
	return s.store.Locate(key, tier)
}

// Exists reports whether the cache holds a settled entry for path, either
// a Large thumbnail or a Fail sentinel.
func (s *Service) Exists(path string) bool {
	key := KeyFor(path)
	if _, ok := s.store.Locate(key, TierLarge); ok {
		return true
	}
	_, ok := s.store.Locate(key, TierFail)
	return ok
}

// Request generates the thumbnail for path in the background. The returned
// channel yields exactly one Result and is then closed.
func (s *Service) Request(path string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		img, ok := s.GetThumbnail(path, false)
		ch <- Result{Path: path, Key: KeyFor(path), Image: img, OK: ok}
	}()
	return ch
}

// Invalidate removes every tier for path so the next lookup regenerates
// from the source.
func (s *Service) Invalidate(path string) error {
	key := KeyFor(path)
	err := s.store.WithKeyLock(key, func() error {
		return s.store.Remove(key)
	})
	if err != nil {
		logging.Warn("Failed to invalidate thumbnails for %s: %v", path, err)
		return err
	}
	metrics.ThumbnailInvalidations.Inc()
	logging.Debug("Invalidated thumbnails for %s", path)
	return nil
}

// Attributes returns the embedded attributes of the cached entry for path,
// looking at Large first and then Fail.
func (s *Service) Attributes(path string) (Attributes, Tier, error) {
	key := KeyFor(path)
	attrs, err := s.store.ReadAttributes(key, TierLarge)
	if err == nil {
		return attrs, TierLarge, nil
	}
	if attrs, failErr := s.store.ReadAttributes(key, TierFail); failErr == nil {
		return attrs, TierFail, nil
	}
	return nil, TierLarge, err
}

// CollectStats implements metrics.StatsProvider.
func (s *Service) CollectStats() (metrics.Stats, error) {
	tiers, err := s.store.Stats()
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Stats{Tiers: tiers}, nil
}

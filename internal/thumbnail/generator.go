package thumbnail

import (
	"image"
	"strconv"
	"time"

	"golang.org/x/image/draw"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"
	"thumbcache/internal/metrics"
)

// ImageDecoder is what the generator needs from a decoder. *Decoder
// implements it.
type ImageDecoder interface {
	SupportsRead(path string) bool
	Size(path string) (width, height int, err error)
	Decode(path string, maxDim int) (image.Image, error)
}

// Outcome is the result of a generation attempt.
type Outcome int

const (
	// OutcomeSuccess means the Large and Normal tiers exist.
	OutcomeSuccess Outcome = iota
	// OutcomeFailed means no usable thumbnail exists. Either a Fail
	// sentinel was found or written, or a tier write failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "failed"
}

// Generator produces the Large and Normal tiers for a source, or records a
// Fail sentinel when the source cannot be decoded.
type Generator struct {
	store    *Store
	decoder  ImageDecoder
	software string
	retry    filesystem.RetryConfig
	latency  *metrics.LatencyTracker
}

// NewGenerator returns a Generator writing into store.
func NewGenerator(store *Store, decoder ImageDecoder, software string, latency *metrics.LatencyTracker) *Generator {
	if software == "" {
		software = DefaultSoftware
	}
	return &Generator{
		store:    store,
		decoder:  decoder,
		software: software,
		retry:    filesystem.DefaultRetryConfig(),
		latency:  latency,
	}
}

// Generate settles the cache entry for path. An existing Fail entry, or a
// Large entry with its Normal companion, short-circuits without touching
// the source. A Large entry missing its Normal companion gets one scaled
// from the cached Large image.
func (g *Generator) Generate(path string) Outcome {
	key := KeyFor(path)
	outcome := OutcomeFailed

	err := g.store.WithKeyLock(key, func() error {
		if _, ok := g.store.Locate(key, TierLarge); ok {
			if _, ok := g.store.Locate(key, TierNormal); !ok {
				outcome = g.restoreNormal(path, key)
				return nil
			}
			metrics.ThumbnailGenerationsTotal.WithLabelValues("settled").Inc()
			outcome = OutcomeSuccess
			return nil
		}
		if _, ok := g.store.Locate(key, TierFail); ok {
			metrics.ThumbnailGenerationsTotal.WithLabelValues("settled").Inc()
			return nil
		}

		metrics.ThumbnailGenerationsInFlight.Inc()
		defer metrics.ThumbnailGenerationsInFlight.Dec()

		start := time.Now()
		outcome = g.generateLocked(path, key)
		g.latency.Record("generate", time.Since(start))
		metrics.ThumbnailGenerationDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
		return nil
	})
	if err != nil {
		logging.Error("Thumbnail lock failed for %s: %v", path, err)
		return OutcomeFailed
	}
	return outcome
}

func (g *Generator) generateLocked(path string, key Key) Outcome {
	attrs := g.attributes(path)

	if !g.decoder.SupportsRead(path) {
		logging.Debug("Can't read image: %s", path)
		return g.writeFail(path, key, attrs)
	}

	start := time.Now()
	large, err := g.decoder.Decode(path, LargeSize)
	g.latency.Record("decode", time.Since(start))
	if err != nil {
		logging.Debug("Decode failed for %s: %v", path, err)
		return g.writeFail(path, key, attrs)
	}

	start = time.Now()
	normal := scaleDown(large, NormalSize)
	g.latency.Record("resize", time.Since(start))
	metrics.ThumbnailGenerationDuration.WithLabelValues("resize").Observe(time.Since(start).Seconds())

	start = time.Now()
	if err := g.store.Write(key, TierLarge, large, attrs); err != nil {
		logging.Warn("Failed to write large thumbnail for %s: %v", path, err)
		metrics.ThumbnailGenerationsTotal.WithLabelValues("write_error").Inc()
		return OutcomeFailed
	}
	if err := g.store.Write(key, TierNormal, normal, attrs); err != nil {
		logging.Warn("Failed to write normal thumbnail for %s: %v", path, err)
		if rmErr := g.store.removeTier(key, TierLarge); rmErr != nil {
			logging.Warn("Failed to roll back large thumbnail for %s: %v", path, rmErr)
		}
		metrics.ThumbnailGenerationsTotal.WithLabelValues("write_error").Inc()
		return OutcomeFailed
	}
	g.latency.Record("encode", time.Since(start))
	metrics.ThumbnailGenerationDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())

	metrics.ThumbnailGenerationsTotal.WithLabelValues("success").Inc()
	logging.Debug("Thumbnail generated for %s (%dx%d)", path, large.Bounds().Dx(), large.Bounds().Dy())
	return OutcomeSuccess
}

// restoreNormal rebuilds a missing Normal entry from the cached Large one,
// which another thumbnailer sharing the cache may have written alone. A
// Large entry that cannot be loaded is dropped and the source regenerated.
func (g *Generator) restoreNormal(path string, key Key) Outcome {
	large, err := g.store.Load(key, TierLarge)
	if err != nil {
		logging.Warn("Cached large thumbnail for %s is unreadable, regenerating: %v", path, err)
		if rmErr := g.store.removeTier(key, TierLarge); rmErr != nil {
			logging.Warn("Failed to remove large thumbnail for %s: %v", path, rmErr)
			return OutcomeFailed
		}
		return g.generateLocked(path, key)
	}

	attrs, err := g.store.ReadAttributes(key, TierLarge)
	if err != nil || len(attrs) == 0 {
		attrs = g.attributes(path)
	}

	if err := g.store.Write(key, TierNormal, scaleDown(large, NormalSize), attrs); err != nil {
		logging.Warn("Failed to restore normal thumbnail for %s: %v", path, err)
		metrics.ThumbnailGenerationsTotal.WithLabelValues("write_error").Inc()
		return OutcomeFailed
	}
	metrics.ThumbnailGenerationsTotal.WithLabelValues("restored").Inc()
	logging.Debug("Normal thumbnail restored from large for %s", path)
	return OutcomeSuccess
}

func (g *Generator) writeFail(path string, key Key, attrs Attributes) Outcome {
	sentinel := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	if err := g.store.Write(key, TierFail, sentinel, attrs); err != nil {
		logging.Warn("Failed to write fail thumbnail for %s: %v", path, err)
		metrics.ThumbnailGenerationsTotal.WithLabelValues("write_error").Inc()
		return OutcomeFailed
	}
	metrics.ThumbnailFailSentinels.Inc()
	metrics.ThumbnailGenerationsTotal.WithLabelValues("failed").Inc()
	logging.Debug("Save failed thumbnail for %s", path)
	return OutcomeFailed
}

// attributes collects what is known about the source. Fields that cannot
// be determined are omitted.
func (g *Generator) attributes(path string) Attributes {
	attrs := Attributes{
		AttrURI:      URIFor(path),
		AttrSoftware: g.software,
	}

	info, err := filesystem.StatWithRetry(path, g.retry)
	if err != nil {
		return attrs
	}
	attrs[AttrSize] = strconv.FormatInt(info.Size(), 10)
	attrs[AttrMTime] = strconv.FormatInt(info.ModTime().Unix(), 10)

	var header []byte
	if f, err := filesystem.OpenWithRetry(path, g.retry); err == nil {
		header, _ = mediatypes.ReadHeader(f)
		closeQuietly(f, path)
	}
	attrs[AttrMimetype] = mediatypes.MimeTypeFor(path, header, info.Size())

	if w, h, err := g.decoder.Size(path); err == nil {
		attrs[AttrImageWidth] = strconv.Itoa(w)
		attrs[AttrImageHeight] = strconv.Itoa(h)
	}
	return attrs
}

// scaleDown fits img into a limit x limit box with Catmull-Rom resampling.
// Images already inside the box are returned as is.
func scaleDown(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), limit)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

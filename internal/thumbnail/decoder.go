package thumbnail

import (
	"fmt"
	"image"
	"time"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
)

// Decoder picks a codec for a source file, decodes it at a bounded size and
// applies its EXIF orientation.
type Decoder struct {
	codecs        []Codec
	retry         filesystem.RetryConfig
	maxSourceSize int64
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithCodecs replaces the default codec list. Nil entries are skipped.
func WithCodecs(codecs ...Codec) DecoderOption {
	return func(d *Decoder) {
		d.codecs = make([]Codec, 0, len(codecs))
		for _, c := range codecs {
			if c != nil {
				d.codecs = append(d.codecs, c)
			}
		}
	}
}

// WithMaxSourceSize makes sources larger than n bytes unreadable. Zero
// disables the limit.
func WithMaxSourceSize(n int64) DecoderOption {
	return func(d *Decoder) {
		d.maxSourceSize = n
	}
}

// WithRetryConfig sets the NFS retry policy for source access.
func WithRetryConfig(cfg filesystem.RetryConfig) DecoderOption {
	return func(d *Decoder) {
		d.retry = cfg
	}
}

// NewDecoder returns a Decoder probing libvips (when initialised), then the
// pure Go raster codec, then the SVG renderer.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{retry: filesystem.DefaultRetryConfig()}
	for _, opt := range opts {
		opt(d)
	}
	if d.codecs == nil {
		for _, c := range []Codec{NewVipsCodec(d.retry), NewRasterCodec(d.retry), NewSVGCodec(d.retry)} {
			if c != nil {
				d.codecs = append(d.codecs, c)
			}
		}
	}
	return d
}

// Codecs returns the codec names in probe order.
func (d *Decoder) Codecs() []string {
	names := make([]string, len(d.codecs))
	for i, c := range d.codecs {
		names[i] = c.Name()
	}
	return names
}

// SupportsRead reports whether any codec can read path.
func (d *Decoder) SupportsRead(path string) bool {
	_, err := d.codecFor(path)
	return err == nil
}

// Size returns the raw dimensions of path as stored in the file.
func (d *Decoder) Size(path string) (int, int, error) {
	c, err := d.codecFor(path)
	if err != nil {
		return 0, 0, err
	}
	w, h, err := c.Size(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", ErrUnreadable, c.Name(), err)
	}
	return w, h, nil
}

// Decode returns path upright and bounded to maxDim on its longer edge.
func (d *Decoder) Decode(path string, maxDim int) (image.Image, error) {
	c, err := d.codecFor(path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	img, err := c.Decode(path, maxDim)
	metrics.ThumbnailGenerationDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ThumbnailDecodeByCodec.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, c.Name(), err)
	}
	metrics.ThumbnailDecodeByCodec.WithLabelValues(c.Name(), "success").Inc()

	if decodesUpright(c) {
		return img, nil
	}
	if o := ReadOrientation(path, d.retry); o != OrientationNormal {
		logging.Debug("Applying EXIF orientation %s to %s", o, path)
		img = applyOrientation(img, o)
	}
	return img, nil
}

func (d *Decoder) codecFor(path string) (Codec, error) {
	info, err := filesystem.StatWithRetry(path, d.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnreadable, path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnreadable, path)
	}
	if d.maxSourceSize > 0 && info.Size() > d.maxSourceSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrUnreadable, path, info.Size(), d.maxSourceSize)
	}

	for _, c := range d.codecs {
		if c.CanRead(path) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: no codec accepts %s", ErrUnreadable, path)
}

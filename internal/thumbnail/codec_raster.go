package thumbnail

import (
	"fmt"
	"image"
	"io"

	// Decoders beyond the ones imaging registers
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
)

// rasterCodec decodes with the pure Go image packages: JPEG, PNG and GIF
// from the standard library, BMP and TIFF via imaging, WebP via x/image.
// It has no decode-time shrink, so large sources are decoded at full size
// and downscaled with Lanczos.
type rasterCodec struct {
	retry filesystem.RetryConfig
}

// NewRasterCodec returns the pure Go codec.
func NewRasterCodec(retry filesystem.RetryConfig) Codec {
	return &rasterCodec{retry: retry}
}

func (c *rasterCodec) Name() string { return "raster" }

func (c *rasterCodec) CanRead(path string) bool {
	_, _, err := c.Size(path)
	return err == nil
}

func (c *rasterCodec) Size(path string) (int, int, error) {
	f, err := filesystem.OpenWithRetry(path, c.retry)
	if err != nil {
		return 0, 0, err
	}
	defer closeQuietly(f, path)

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}

func (c *rasterCodec) Decode(path string, maxDim int) (image.Image, error) {
	f, err := filesystem.OpenWithRetry(path, c.retry)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(f, path)

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), maxDim)
	if w == b.Dx() && h == b.Dy() {
		return img, nil
	}

	logging.Debug("raster: scaling %s from %dx%d to %dx%d", path, b.Dx(), b.Dy(), w, h)
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}

func closeQuietly(c io.Closer, path string) {
	if err := c.Close(); err != nil {
		logging.Warn("failed to close %s: %v", path, err)
	}
}

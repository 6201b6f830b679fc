package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"
)

// vipsCodec decodes through vips_thumbnail, which asks the loader for a
// reduced image (JPEG DCT scaling, WebP and HEIF shrink-on-load) instead of
// materialising the full-size raster. It also covers HEIF, AVIF, JPEG XL and
// camera RAW when libvips was built with them.
type vipsCodec struct {
	retry filesystem.RetryConfig
	// header reads dimensions without decoding pixels for the formats the
	// Go image packages recognise.
	header Codec
}

// NewVipsCodec returns the libvips codec, or nil when libvips has not been
// initialised.
func NewVipsCodec(retry filesystem.RetryConfig) Codec {
	if !IsVipsAvailable() {
		return nil
	}
	return &vipsCodec{retry: retry, header: NewRasterCodec(retry)}
}

func (c *vipsCodec) Name() string { return "vips" }

// DecodesUpright reports that vips_thumbnail already rotates by the EXIF
// orientation.
func (c *vipsCodec) DecodesUpright() bool { return true }

func (c *vipsCodec) CanRead(path string) bool {
	f, err := filesystem.OpenWithRetry(path, c.retry)
	if err != nil {
		return false
	}
	defer closeQuietly(f, path)

	header, err := mediatypes.ReadHeader(f)
	if err != nil || len(header) == 0 {
		return false
	}
	t := vips.DetermineImageType(header)
	return t != vips.ImageTypeUnknown && vips.IsTypeSupported(t)
}

func (c *vipsCodec) Size(path string) (int, int, error) {
	if w, h, err := c.header.Size(path); err == nil {
		return w, h, nil
	}

	// HEIF, RAW and the rest: libvips only parses the header of the
	// buffer, but govips has no file loader that avoids reading it whole.
	ref, err := c.loadBuffer(path, false)
	if err != nil {
		return 0, 0, err
	}
	defer ref.Close()
	return ref.Width(), ref.Height(), nil
}

func (c *vipsCodec) loadBuffer(path string, autoRotate bool) (*vips.ImageRef, error) {
	buf, err := filesystem.ReadFileWithRetry(path, c.retry)
	if err != nil {
		return nil, err
	}
	params := vips.NewImportParams()
	params.AutoRotate.Set(autoRotate)
	ref, err := vips.LoadImageFromBuffer(buf, params)
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	return ref, nil
}

func (c *vipsCodec) Decode(path string, maxDim int) (image.Image, error) {
	var (
		ref *vips.ImageRef
		err error
	)
	if maxDim <= 0 {
		ref, err = c.loadBuffer(path, true)
	} else {
		// libvips opens the file itself; go through the retry layer first
		// so a stale NFS handle is refreshed before it does.
		if _, err := filesystem.StatWithRetry(path, c.retry); err != nil {
			return nil, err
		}
		ref, err = vips.LoadThumbnailFromFile(path, maxDim, maxDim, vips.InterestingNone, vips.SizeDown, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	buf, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode vips output: %w", err)
	}

	// Mirrored orientations are left alone by the other codecs
	img = undoMirror(img, readOrientationTag(path, c.retry))

	if maxDim > 0 {
		img = c.fitExact(path, img, maxDim)
	}
	return img, nil
}

// fitExact resizes img by at most a pixel per edge when libvips rounded the
// box differently from FitSize. Sources whose header cannot be probed keep
// the libvips size.
func (c *vipsCodec) fitExact(path string, img image.Image, maxDim int) image.Image {
	w, h, err := c.header.Size(path)
	if err != nil {
		return img
	}
	w, h = FitSize(w, h, maxDim)
	b := img.Bounds()
	if (b.Dx() >= b.Dy()) != (w >= h) {
		w, h = h, w
	}
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	if absDiff(b.Dx(), w) > 1 || absDiff(b.Dy(), h) > 1 {
		return img
	}
	logging.Debug("vips: adjusting %s from %dx%d to %dx%d", path, b.Dx(), b.Dy(), w, h)
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// undoMirror reverts the flip vips_thumbnail applied for a mirrored EXIF
// orientation. Each of these transforms is its own inverse.
func undoMirror(img image.Image, tag int) image.Image {
	switch tag {
	case 2:
		return imaging.FlipH(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 7:
		return imaging.Transverse(img)
	default:
		return img
	}
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

package thumbnail

import (
	"fmt"
	"image"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/mediatypes"
)

// svgCodec renders vector images. It is probed last, so it only sees
// files no raster codec accepted.
type svgCodec struct {
	retry filesystem.RetryConfig
}

// NewSVGCodec returns the vector codec.
func NewSVGCodec(retry filesystem.RetryConfig) Codec {
	return &svgCodec{retry: retry}
}

func (c *svgCodec) Name() string { return "svg" }

func (c *svgCodec) CanRead(path string) bool {
	if !mediatypes.IsVector(path) && !c.sniff(path) {
		return false
	}
	_, _, err := c.Size(path)
	return err == nil
}

func (c *svgCodec) sniff(path string) bool {
	f, err := filesystem.OpenWithRetry(path, c.retry)
	if err != nil {
		return false
	}
	defer closeQuietly(f, path)

	header, err := mediatypes.ReadHeader(f)
	if err != nil {
		return false
	}
	return mediatypes.DetectFormat(header) == "svg"
}

func (c *svgCodec) load(path string) (*oksvg.SvgIcon, error) {
	f, err := filesystem.OpenWithRetry(path, c.retry)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(f, path)

	icon, err := oksvg.ReadIconStream(f)
	if err != nil {
		return nil, err
	}
	return icon, nil
}

func (c *svgCodec) Size(path string) (int, int, error) {
	icon, err := c.load(path)
	if err != nil {
		return 0, 0, err
	}
	w := int(math.Round(icon.ViewBox.W))
	h := int(math.Round(icon.ViewBox.H))
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("svg has no usable viewBox")
	}
	return w, h, nil
}

func (c *svgCodec) Decode(path string, maxDim int) (image.Image, error) {
	icon, err := c.load(path)
	if err != nil {
		return nil, err
	}

	srcW := int(math.Round(icon.ViewBox.W))
	srcH := int(math.Round(icon.ViewBox.H))
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("svg has no usable viewBox")
	}
	w, h := FitSize(srcW, srcH, maxDim)

	icon.SetTarget(0, 0, float64(w), float64(h))
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return rgba, nil
}

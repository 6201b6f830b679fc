package thumbnail

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// gradient returns a w x h image whose pixels vary in both directions so
// scaling and rotation are observable.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	writeFile(t, path, buf.Bytes())
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	writeFile(t, path, buf.Bytes())
}

// writeOrientedJPEG writes a JPEG with an APP1 EXIF segment carrying only
// the orientation tag.
func writeOrientedJPEG(t *testing.T, path string, w, h int, orientation uint16) {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}

	var tiff bytes.Buffer
	tiff.WriteString("II*\x00")
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8)) // IFD0 offset
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(1)) // entry count
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0112))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(3)) // SHORT
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(1))
	_ = binary.Write(&tiff, binary.LittleEndian, orientation)
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0)) // no next IFD

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	segment := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(segment[2:], uint16(len(payload)+2))
	segment = append(segment, payload...)

	data := buf.Bytes()
	out := make([]byte, 0, len(data)+len(segment))
	out = append(out, data[:2]...) // SOI
	out = append(out, segment...)
	out = append(out, data[2:]...)
	writeFile(t, path, out)
}

func writeSVG(t *testing.T, path string, w, h int) {
	t.Helper()
	svg := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %[1]d %[2]d" width="%[1]d" height="%[2]d">
  <rect x="0" y="0" width="%[1]d" height="%[2]d" fill="#3366cc"/>
</svg>
`, w, h)
	writeFile(t, path, []byte(svg))
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func imageSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("failed to decode %s: %v", path, err)
	}
	return cfg.Width, cfg.Height
}

// countingDecoder records how often the generator touches the source.
type countingDecoder struct {
	inner    ImageDecoder
	supports atomic.Int32
	sizes    atomic.Int32
	decodes  atomic.Int32
}

func newCountingDecoder() *countingDecoder {
	return &countingDecoder{inner: NewDecoder()}
}

func (c *countingDecoder) SupportsRead(path string) bool {
	c.supports.Add(1)
	return c.inner.SupportsRead(path)
}

func (c *countingDecoder) Size(path string) (int, int, error) {
	c.sizes.Add(1)
	return c.inner.Size(path)
}

func (c *countingDecoder) Decode(path string, maxDim int) (image.Image, error) {
	c.decodes.Add(1)
	return c.inner.Decode(path, maxDim)
}

func (c *countingDecoder) touches() int32 {
	return c.supports.Load() + c.sizes.Load() + c.decodes.Load()
}

// newTestService returns a service with its cache under a temp dir.
func newTestService(t *testing.T) (*Service, *countingDecoder) {
	t.Helper()
	dec := newCountingDecoder()
	store := NewStore(t.TempDir())
	return New(store, dec), dec
}

package thumbnail

import (
	"errors"
	"image"
)

// ErrUnreadable is wrapped by every decode error. The generator maps it to
// a Fail sentinel.
var ErrUnreadable = errors.New("source image is unreadable")

// Codec is one image decoding backend. Decoder probes codecs in order and
// uses the first one whose CanRead accepts the file.
type Codec interface {
	// Name identifies the codec in logs and metrics.
	Name() string
	// CanRead reports whether the codec recognises the file. It reads at
	// most the image header.
	CanRead(path string) bool
	// Size returns the raw pixel dimensions, before any orientation
	// transform.
	Size(path string) (width, height int, err error)
	// Decode returns the image scaled so neither edge exceeds maxDim.
	// maxDim <= 0 means full size. Orientation is not applied unless the
	// codec says otherwise through DecodesUpright.
	Decode(path string, maxDim int) (image.Image, error)
}

// uprightCodec is implemented by codecs whose Decode already applies the
// EXIF rotation. Decoder then leaves the image as returned.
type uprightCodec interface {
	DecodesUpright() bool
}

func decodesUpright(c Codec) bool {
	u, ok := c.(uprightCodec)
	return ok && u.DecodesUpright()
}

// FitSize scales w x h into a limit x limit box preserving aspect ratio. The
// larger edge becomes limit and the smaller is floor(smaller*limit/larger),
// never below 1. Images already inside the box are returned unchanged.
func FitSize(w, h, limit int) (int, int) {
	if w <= 0 || h <= 0 || limit <= 0 {
		return w, h
	}
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, atLeastOne(h * limit / w)
	}
	return atLeastOne(w * limit / h), limit
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

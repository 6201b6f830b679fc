package thumbnail

import (
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"thumbcache/internal/filesystem"
)

// Orientation is the EXIF orientation tag value.
type Orientation int

// The orientations the decoder corrects. Mirrored variants are treated as
// OrientationNormal.
const (
	OrientationNormal      Orientation = 1
	OrientationRotate180   Orientation = 3
	OrientationRotate90CW  Orientation = 6
	OrientationRotate90CCW Orientation = 8
)

func (o Orientation) String() string {
	switch o {
	case OrientationRotate180:
		return "rotate-180"
	case OrientationRotate90CW:
		return "rotate-90-cw"
	case OrientationRotate90CCW:
		return "rotate-90-ccw"
	default:
		return "normal"
	}
}

// SwapsDimensions reports whether applying o exchanges width and height.
func (o Orientation) SwapsDimensions() bool {
	return o == OrientationRotate90CW || o == OrientationRotate90CCW
}

// ReadOrientation reads the EXIF orientation of path. Missing, unreadable
// and unhandled values all yield OrientationNormal.
func ReadOrientation(path string, retry filesystem.RetryConfig) Orientation {
	switch o := Orientation(readOrientationTag(path, retry)); o {
	case OrientationRotate180, OrientationRotate90CW, OrientationRotate90CCW:
		return o
	default:
		return OrientationNormal
	}
}

// readOrientationTag returns the raw EXIF orientation value, or 1 when
// there is none.
func readOrientationTag(path string, retry filesystem.RetryConfig) int {
	x, err := readExif(path, retry)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// applyOrientation returns img transformed so it displays upright.
func applyOrientation(img image.Image, o Orientation) image.Image {
	switch o {
	case OrientationRotate180:
		return imaging.Rotate180(img)
	case OrientationRotate90CW:
		// imaging rotates counter-clockwise
		return imaging.Rotate270(img)
	case OrientationRotate90CCW:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// ReadCaptureTime returns the EXIF DateTimeOriginal (or DateTime) of path.
func ReadCaptureTime(path string, retry filesystem.RetryConfig) (time.Time, bool) {
	x, err := readExif(path, retry)
	if err != nil {
		return time.Time{}, false
	}
	t, err := x.DateTime()
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ReadMetadata returns every EXIF field of path as display strings.
func ReadMetadata(path string, retry filesystem.RetryConfig) (map[string]string, error) {
	x, err := readExif(path, retry)
	if err != nil {
		return nil, err
	}
	w := make(metadataWalker)
	if err := x.Walk(w); err != nil {
		return nil, err
	}
	return w, nil
}

type metadataWalker map[string]string

func (m metadataWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if s, err := tag.StringVal(); err == nil {
		m[string(name)] = s
		return nil
	}
	m[string(name)] = tag.String()
	return nil
}

func readExif(path string, retry filesystem.RetryConfig) (*exif.Exif, error) {
	f, err := filesystem.OpenWithRetry(path, retry)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(f, path)
	return exif.Decode(f)
}

package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"
	"thumbcache/internal/metrics"
)

// ErrInvalidRotation is returned for angles that are not a multiple of 90.
var ErrInvalidRotation = errors.New("rotation must be a multiple of 90 degrees")

// ErrNotWritable is returned for sources that are never rewritten, such as
// camera RAW files.
var ErrNotWritable = errors.New("source format cannot be rewritten")

// NormalizeRotation maps degrees to [0, 360). Positive values rotate
// clockwise.
func NormalizeRotation(degrees int) (int, error) {
	if degrees%90 != 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRotation, degrees)
	}
	return ((degrees % 360) + 360) % 360, nil
}

// Rotate rotates the source file in place by degrees clockwise and then
// drops every cached tier for it, whether or not the rewrite succeeded.
// Angles that are not a multiple of 90 are rejected before any file is
// touched.
func (s *Service) Rotate(path string, degrees int) bool {
	deg, err := NormalizeRotation(degrees)
	if err != nil {
		logging.Debug("Rejected rotation of %s: %v", path, err)
		metrics.ThumbnailRotations.WithLabelValues("invalid").Inc()
		return false
	}

	ok := true
	if deg != 0 {
		if err := rotateFile(path, deg, s.retry); err != nil {
			logging.Warn("Failed to rotate %s by %d degrees: %v", path, deg, err)
			ok = false
		}
	}

	// The old tiers describe the old orientation either way
	if err := s.Invalidate(path); err != nil {
		ok = false
	}

	if ok {
		metrics.ThumbnailRotations.WithLabelValues("success").Inc()
	} else {
		metrics.ThumbnailRotations.WithLabelValues("error").Inc()
	}
	return ok
}

// rotateFile rewrites path rotated by deg (90, 180 or 270) clockwise. It
// re-encodes with imaging when the format is one imaging can write and
// falls back to libvips otherwise.
func rotateFile(path string, deg int, retry filesystem.RetryConfig) error {
	if mediatypes.IsRaw(path) {
		return ErrNotWritable
	}

	info, err := filesystem.StatWithRetry(path, retry)
	if err != nil {
		return err
	}

	data, err := rotateWithImaging(path, deg)
	if err != nil {
		logging.Debug("imaging rotate failed for %s: %v, trying libvips", path, err)
		var vipsErr error
		data, vipsErr = rotateWithVips(path, deg)
		if vipsErr != nil {
			return errors.Join(err, vipsErr)
		}
	}
	return replaceFile(path, data, info.Mode().Perm())
}

func rotateWithImaging(path string, deg int) ([]byte, error) {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	var out image.Image
	switch deg {
	case 90:
		out = imaging.Rotate270(img)
	case 180:
		out = imaging.Rotate180(img)
	case 270:
		out = imaging.Rotate90(img)
	default:
		out = img
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, format, imaging.JPEGQuality(95)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rotateWithVips(path string, deg int) ([]byte, error) {
	if !IsVipsAvailable() {
		return nil, errors.New("libvips not available")
	}

	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("vips autorotate failed: %w", err)
	}

	angle := map[int]vips.Angle{90: vips.Angle90, 180: vips.Angle180, 270: vips.Angle270}[deg]
	if err := ref.Rotate(angle); err != nil {
		return nil, fmt.Errorf("vips rotate failed: %w", err)
	}

	data, _, err := ref.ExportNative()
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	return data, nil
}

// replaceFile atomically swaps the contents of path for data.
func replaceFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		logging.Debug("failed to preserve mode on %s: %v", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

package thumbnail

import (
	"image"

	"github.com/disintegration/imaging"
)

// CutSquare returns the centred square of img. With size > 0 the image is
// first scaled so its shorter edge is size, then cropped to size x size.
func CutSquare(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Empty() {
		return img
	}
	if size <= 0 {
		side := b.Dx()
		if b.Dy() < side {
			side = b.Dy()
		}
		return imaging.CropCenter(img, side, side)
	}
	return imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
}

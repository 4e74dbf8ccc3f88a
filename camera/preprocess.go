package camera

import (
	"image"

	"github.com/disintegration/imaging"
)

const (
	recognitionWidth  = 640
	recognitionHeight = 240
)

// Preprocess prepares a frame for recognition: the display region is cropped out, scaled to a fixed size and
// converted to high contrast grayscale. A region that lies outside the frame is ignored.
func Preprocess(frame image.Image, region *Region) *image.NRGBA {
	img := imaging.Clone(frame)

	if region != nil {
		rect := region.rect().Intersect(img.Bounds())
		if !rect.Empty() {
			img = imaging.Crop(img, rect)
		}
	}

	img = imaging.Fit(img, recognitionWidth, recognitionHeight, imaging.Lanczos)
	img = imaging.Grayscale(img)
	img = imaging.AdjustContrast(img, 40)

	return img
}

// Package raster turns raw camera output into drawable images and measures
// them.
package raster

import (
	"image"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
)

// BytesPerPixel is the stride of a raw frame: R, G, B, no alpha.
const BytesPerPixel = 3

// FromRGB builds an opaque RGBA raster from a row-major, top-to-bottom RGB
// buffer. Bytes beyond width*height*3 are ignored.
func FromRGB(frame []byte, width, height int) (*image.RGBA, error) {
	errFactory := errors.New()

	if width <= 0 || height <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, [2]int{width, height})
	}

	expected := width * height * BytesPerPixel
	if len(frame) < expected {
		return nil, errFactory.WithData(errors.ErrMalformedFrame, struct {
			Got      int
			Expected int
		}{
			Got:      len(frame),
			Expected: expected,
		})
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4+0] = frame[i*3+0]
		img.Pix[i*4+1] = frame[i*3+1]
		img.Pix[i*4+2] = frame[i*3+2]
		img.Pix[i*4+3] = 0xFF
	}

	return img, nil
}

// AverageBrightness returns the mean of (R+G+B)/3 over every pixel, in
// [0, 255]. Channels are not weighted; this is a scene-level proxy, not
// perceptual luminance.
func AverageBrightness(img *image.RGBA) float64 {
	b := img.Bounds()
	pixels := b.Dx() * b.Dy()
	if pixels == 0 {
		return 0
	}

	var sum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			sum += uint64(row[x*4]) + uint64(row[x*4+1]) + uint64(row[x*4+2])
		}
	}

	return float64(sum) / 3 / float64(pixels)
}

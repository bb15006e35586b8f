// Package overlaytest builds in-memory overlay assets for tests.
package overlaytest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"sync"
	"testing/fstest"

	"codeberg.org/hydrocam/hydrocam/internal/overlay"
	"golang.org/x/image/font/gofont/goregular"
)

// Icon colors used by NewFS, all fully opaque.
var (
	TemperatureColor = color.NRGBA{R: 255, A: 255}
	HumidityColor    = color.NRGBA{G: 255, A: 255}
	WaterLevelColor  = color.NRGBA{B: 255, A: 255}
)

// NewFS returns a filesystem holding solid square icons of the given size
// and a real TrueType font under the default asset names.
func NewFS(iconSize int) fstest.MapFS {
	return fstest.MapFS{
		overlay.DefaultTemperatureIcon: {Data: SolidPNG(iconSize, TemperatureColor)},
		overlay.DefaultHumidityIcon:    {Data: SolidPNG(iconSize, HumidityColor)},
		overlay.DefaultWaterLevelIcon:  {Data: SolidPNG(iconSize, WaterLevelColor)},
		overlay.DefaultFontFile:        {Data: goregular.TTF},
	}
}

// SolidPNG encodes a size x size image filled with c.
func SolidPNG(size int, c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// CountingFS wraps an fs.FS and counts Open calls.
type CountingFS struct {
	FS fs.FS

	mu    sync.Mutex
	opens int
}

func (c *CountingFS) Open(name string) (fs.File, error) {
	c.mu.Lock()
	c.opens++
	c.mu.Unlock()
	return c.FS.Open(name)
}

// Opens returns the number of Open calls so far.
func (c *CountingFS) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

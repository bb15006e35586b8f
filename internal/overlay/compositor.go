package overlay

import (
	"fmt"
	"image"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Slot is a vertical icon/label position in the overlay column.
type Slot int

const (
	SlotTemperature Slot = iota
	SlotHumidity
	SlotWaterLevel
)

type slotEntry struct {
	slot    Slot
	enabled bool
}

// Slots are stacked in this order. The water level slot keeps its position
// but draws nothing until a water level sensor exists.
var slotLayout = []slotEntry{
	{slot: SlotTemperature, enabled: true},
	{slot: SlotHumidity, enabled: true},
	{slot: SlotWaterLevel, enabled: false},
}

// Compositor draws the telemetry overlay onto a raster.
type Compositor struct {
	settings Settings
}

func NewCompositor(settings Settings) *Compositor {
	return &Compositor{settings: settings}
}

// Composite draws the timestamp, icons and labels onto img in place. Only the
// color channels of img are blended under icons.
func (c *Compositor) Composite(img *image.RGBA, res *Resources, temperature, humidity float64, ts time.Time) error {
	if res == nil || res.Font == nil {
		return errors.New().New(errors.ErrResourceLoad)
	}

	face, err := opentype.NewFace(res.Font, &opentype.FaceOptions{
		Size:    c.settings.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return errors.New().Wrap(errors.ErrResourceLoad, err)
	}
	defer face.Close()

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c.settings.TextColor),
		Face: face,
	}
	text := func(s string, x, y int) {
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(s)
	}

	text(FormatTimestamp(ts), c.settings.StatusTextX, c.settings.StatusTextY)

	for i, entry := range slotLayout {
		if !entry.enabled {
			continue
		}

		icon, label := c.slotContent(entry.slot, res, temperature, humidity)
		iconY := c.settings.IconYStart + i*c.settings.IconYSpacing
		textY := c.settings.IconTextYStart + i*c.settings.IconYSpacing

		if icon != nil {
			c.drawAnchoredIcon(img, icon, iconY)
		}
		text(label, c.settings.IconTextX, textY)
	}

	return nil
}

func (c *Compositor) slotContent(slot Slot, res *Resources, temperature, humidity float64) (*image.NRGBA, string) {
	switch slot {
	case SlotTemperature:
		return res.Temperature, fmt.Sprintf("%.2f°", temperature)
	case SlotHumidity:
		return res.Humidity, fmt.Sprintf("%.2f%%", humidity)
	case SlotWaterLevel:
		return res.WaterLevel, "N/A"
	default:
		return nil, ""
	}
}

// drawAnchoredIcon centers icon horizontally on the anchor column.
func (c *Compositor) drawAnchoredIcon(dst *image.RGBA, icon *image.NRGBA, top int) {
	left := c.settings.IconAnchorX - icon.Bounds().Dx()/2
	Blend(dst, icon, left, top)
}

// Blend alpha-composites src onto dst with src's top-left corner at
// (left, top):
//
//	dst[c] = src[c]*a + dst[c]*(1-a), a = srcAlpha/255
//
// for each color channel. dst alpha is untouched. Pixels falling outside dst
// are skipped.
func Blend(dst *image.RGBA, src *image.NRGBA, left, top int) {
	db := dst.Bounds()
	sb := src.Bounds()

	for y := 0; y < sb.Dy(); y++ {
		ty := top + y
		if ty < db.Min.Y || ty >= db.Max.Y {
			continue
		}
		for x := 0; x < sb.Dx(); x++ {
			tx := left + x
			if tx < db.Min.X || tx >= db.Max.X {
				continue
			}

			si := src.PixOffset(sb.Min.X+x, sb.Min.Y+y)
			di := dst.PixOffset(tx, ty)
			a := float64(src.Pix[si+3]) / 0xFF

			for ch := 0; ch < 3; ch++ {
				v := float64(src.Pix[si+ch])*a + float64(dst.Pix[di+ch])*(1-a)
				if v > 0xFF {
					v = 0xFF
				}
				dst.Pix[di+ch] = uint8(v)
			}
		}
	}
}

// FormatTimestamp renders t as "Sunday, October 18th, 2026, 11:05:09 PM".
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%s, %s %d%s, %d, %s",
		t.Weekday(), t.Month(), t.Day(), ordinalSuffix(t.Day()), t.Year(), t.Format("3:04:05 PM"))
}

func ordinalSuffix(day int) string {
	if day%100 >= 11 && day%100 <= 13 {
		return "th"
	}

	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

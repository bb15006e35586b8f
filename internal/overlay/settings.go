package overlay

import "image/color"

const (
	DefaultTemperatureIcon = "icon-temperature.png"
	DefaultHumidityIcon    = "icon-humidity.png"
	DefaultWaterLevelIcon  = "icon-water-level.png"
	DefaultFontFile        = "OpenSans.ttf"
	DefaultFontName        = "Open Sans"
	DefaultFontSize        = 24
)

// Settings holds overlay asset names (relative to the resource filesystem)
// and the fixed pixel layout.
type Settings struct {
	TemperatureIcon string
	HumidityIcon    string
	WaterLevelIcon  string
	FontFile        string
	FontName        string
	FontSize        float64
	TextColor       color.Color

	IconYSpacing   int // vertical step between consecutive icon/label pairs
	IconAnchorX    int // icons are centered on this column
	IconTextX      int // labels start here regardless of icon width
	IconYStart     int
	IconTextYStart int // baseline of the first label
	StatusTextX    int
	StatusTextY    int // baseline of the timestamp
}

// DefaultSettings returns the layout used on the reference 1280x720 frame.
func DefaultSettings() Settings {
	return Settings{
		TemperatureIcon: DefaultTemperatureIcon,
		HumidityIcon:    DefaultHumidityIcon,
		WaterLevelIcon:  DefaultWaterLevelIcon,
		FontFile:        DefaultFontFile,
		FontName:        DefaultFontName,
		FontSize:        DefaultFontSize,
		TextColor:       color.White,

		IconYSpacing:   75,
		IconAnchorX:    50,
		IconTextX:      100,
		IconYStart:     65,
		IconTextYStart: 95,
		StatusTextX:    30,
		StatusTextY:    30,
	}
}

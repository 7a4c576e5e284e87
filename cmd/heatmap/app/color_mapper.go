package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme represents a predefined color scheme for amplitude visualization.
type ColorTheme string

const (
	DefaultTheme   ColorTheme = "default"   // Black to blue to cyan to yellow to red
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256 // Default number of colors in the map
)

var noDataColor color.Color = color.Black

// ColorMapper provides amplitude-to-color mapping with support for different color
// themes and dynamic range adjustment
type ColorMapper struct {
	colorMap    []color.Color // Pre-computed colors
	theme       func(float64) color.Color
	themeName   ColorTheme
	size        int
	ampPerIndex float64 // Amplitude range per index step
	boundsMin   float64
	boundsRange float64
}

// NewColorMapper creates a new color mapper with specified theme and bounds.
// Uses default size (256) for the color map.
func NewColorMapper(theme ColorTheme, bounds AmplitudeBounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

// NewColorMapperWithSize creates a new color mapper with specified size.
func NewColorMapperWithSize(theme ColorTheme, bounds AmplitudeBounds, size int) *ColorMapper {
	if size <= 1 {
		size = DefaultColorMapSize
	}

	cm := &ColorMapper{
		colorMap:  make([]color.Color, size),
		theme:     getColorTheme(theme),
		themeName: theme,
		size:      size,
	}
	for i := 0; i < cm.size; i++ {
		cm.colorMap[i] = cm.theme(float64(i) / float64(cm.size-1))
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds updates the amplitude bounds used to index the color map
func (cm *ColorMapper) UpdateBounds(bounds AmplitudeBounds) {
	cm.boundsMin = bounds.Min
	cm.boundsRange = bounds.Max - bounds.Min
	cm.ampPerIndex = cm.boundsRange / float64(cm.size-1)
}

// GetColor returns a color for the given amplitude
func (cm *ColorMapper) GetColor(amp float64) color.Color {
	if math.IsNaN(amp) || cm.ampPerIndex <= 0 {
		return noDataColor
	}

	index := int((amp - cm.boundsMin) / cm.ampPerIndex)

	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= cm.size {
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

// ThemeName returns the current color theme name
func (cm *ColorMapper) ThemeName() ColorTheme {
	return cm.themeName
}

// Size returns the color map size
func (cm *ColorMapper) Size() int {
	return cm.size
}

func hsv(h, s, v float64) color.Color {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return colorful.Hsv(h, math.Max(0, math.Min(1, s)), math.Max(0, math.Min(1, v))).Clamped()
}

// Color theme implementations
func getColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme:
		return func(level float64) color.Color {
			return hsv(240-(level*240), 0.9+(level*0.1), math.Pow(level, 0.7))
		}

	case GrayscaleTheme:
		return func(level float64) color.Color {
			v := uint8(math.Pow(level, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case JungleTheme:
		return func(level float64) color.Color {
			return hsv(120-(level*60), 1.0, 0.3+(math.Pow(level, 0.6)*0.7))
		}

	case ThermalTheme:
		return func(level float64) color.Color {
			if level < 0.33 {
				return color.RGBA{R: uint8((level * 3) * 255), A: 255}
			}
			if level < 0.66 {
				return color.RGBA{R: 255, G: uint8(((level - 0.33) * 3) * 255), A: 255}
			}
			return color.RGBA{R: 255, G: 255, B: uint8(math.Min(1, (level-0.66)*3) * 255), A: 255}
		}

	case MarineTheme:
		return func(level float64) color.Color {
			return hsv(240-(level*60), 1.0-(level*0.8), 0.3+(math.Pow(level, 0.6)*0.7))
		}

	default:
		return func(level float64) color.Color {
			level = math.Max(0, math.Min(1, level))
			enhanced := math.Pow(level, 0.7)

			switch {
			case level < 0.25:
				return hsv(240, 1.0, enhanced*4)
			case level < 0.5:
				return hsv(240-((level-0.25)*240), 1.0, enhanced*1.5)
			case level < 0.75:
				p := (level - 0.5) * 4
				return hsv(180-(p*120), 1.0, math.Min(1.0, enhanced*1.5))
			default:
				p := (level - 0.75) * 4
				return hsv(60-(p*60), 1.0, 1.0)
			}
		}
	}
}

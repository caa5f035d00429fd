package app

import (
	"image/color"
	"math"
	"slices"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme is a predefined color scheme for power values
type ColorTheme string

const (
	EnhancedTheme  ColorTheme = "enhanced"  // Black to blue to cyan to yellow to red
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultTheme        = EnhancedTheme
	DefaultColorMapSize = 256
)

var noDataColor = color.Black

// gradient stops of the thermal theme
var thermalStops = []struct {
	color colorful.Color
	pos   float64
}{
	{colorful.Color{R: 0, G: 0, B: 0}, 0},
	{colorful.Color{R: 1, G: 0, B: 0}, 0.33},
	{colorful.Color{R: 1, G: 1, B: 0}, 0.66},
	{colorful.Color{R: 1, G: 1, B: 1}, 1},
}

var themes = map[ColorTheme]func(float64) colorful.Color{
	EnhancedTheme: enhanced,

	ClassicTheme: func(p float64) colorful.Color {
		return colorful.Hsv(240-p*240, 0.9+p*0.1, math.Pow(p, 0.7))
	},

	GrayscaleTheme: func(p float64) colorful.Color {
		v := math.Pow(p, 0.7)
		return colorful.Color{R: v, G: v, B: v}
	},

	JungleTheme: func(p float64) colorful.Color {
		return colorful.Hsv(120-p*60, 1, 0.3+math.Pow(p, 0.6)*0.7)
	},

	ThermalTheme: func(p float64) colorful.Color {
		for i := 1; i < len(thermalStops); i++ {
			lo, hi := thermalStops[i-1], thermalStops[i]
			if p <= hi.pos {
				return lo.color.BlendRgb(hi.color, (p-lo.pos)/(hi.pos-lo.pos))
			}
		}
		return thermalStops[len(thermalStops)-1].color
	},

	MarineTheme: func(p float64) colorful.Color {
		return colorful.Hsv(240-p*60, 1-p*0.8, 0.3+math.Pow(p, 0.6)*0.7)
	},
}

// Themes returns the names of the available themes.
func Themes() []ColorTheme {
	names := make([]ColorTheme, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (t ColorTheme) IsValid() bool {
	_, ok := themes[t]
	return ok
}

// enhanced gives better differentiation in the lower power ranges.
func enhanced(p float64) colorful.Color {
	e := math.Pow(p, 0.7)

	switch {
	case p < 0.25:
		return colorful.Hsv(240, 1, min(1, e*4))
	case p < 0.5:
		return colorful.Hsv(240-(p-0.25)*240, 1, min(1, e*1.5))
	case p < 0.75:
		return colorful.Hsv(180-(p-0.5)*4*120, 1, min(1, e*1.5))
	default:
		return colorful.Hsv(60-(p-0.75)*4*60, 1, 1)
	}
}

// ColorMapper maps power to colors through a pre-computed table spanning
// the power bounds.
type ColorMapper struct {
	colorMap      []color.Color
	theme         func(float64) colorful.Color
	size          int
	boundsMin     float64
	powerPerIndex float64
}

func NewColorMapper(theme ColorTheme, bounds PowerBounds) *ColorMapper {
	fn, ok := themes[theme]
	if !ok {
		fn = themes[DefaultTheme]
	}

	cm := ColorMapper{
		colorMap: make([]color.Color, DefaultColorMapSize),
		theme:    fn,
		size:     DefaultColorMapSize,
	}
	cm.UpdateBounds(bounds)
	return &cm
}

// UpdateBounds updates the power bounds and recomputes the color map
func (cm *ColorMapper) UpdateBounds(bounds PowerBounds) {
	cm.boundsMin = bounds.Min
	cm.powerPerIndex = (bounds.Max - bounds.Min) / float64(cm.size-1)

	for i := range cm.colorMap {
		normalized := float64(i) / float64(cm.size-1)
		cm.colorMap[i] = cm.theme(normalized).Clamped()
	}
}

// GetColor returns the color of power, clamped to the bounds.
func (cm *ColorMapper) GetColor(power float64) color.Color {
	if math.IsNaN(power) {
		return noDataColor
	}
	if cm.powerPerIndex <= 0 {
		return cm.colorMap[0]
	}

	index := int((power - cm.boundsMin) / cm.powerPerIndex)
	return cm.colorMap[max(0, min(index, cm.size-1))]
}

package app

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"time"
)

const (
	fontSize = 12.0

	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime

	jpegQuality = 98
)

// BorderConfig defines the sizes of white space around the spectrum
type BorderConfig struct {
	Top    int // Space for frequency scale
	Left   int // Space for time scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for spectrum visualization
type RenderConfig struct {
	TimeFormat     string         // Format of the time scale
	DatetimeFormat string         // Format of the info bar
	Location       *time.Location // Timezone for time display

	FontSize      float64
	ColorTheme    ColorTheme
	MinPower      *float64 // manual color scale limits, dB
	MaxPower      *float64
	NoAnnotations bool

	BorderConfig BorderConfig
}

// SpectrumRenderer draws a waterfall with scales and an info bar
type SpectrumRenderer struct {
	config RenderConfig
}

func NewSpectrumRenderer(config RenderConfig) *SpectrumRenderer {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}

	switch {
	case config.NoAnnotations:
		config.BorderConfig = BorderConfig{}
	case config.BorderConfig == (BorderConfig{}):
		config.BorderConfig = BorderConfig{
			Top:    defaultTopBorder,
			Left:   defaultLeftBorder,
			Bottom: defaultBottomBorder,
			Right:  defaultRightBorder,
		}
	}

	return &SpectrumRenderer{config: config}
}

// Bounds returns the power range mapped onto the color scale.
func (r *SpectrumRenderer) Bounds(spec *SpectrumData) PowerBounds {
	return spec.Histogram.Bounds().Override(r.config.MinPower, r.config.MaxPower)
}

// Render creates an image of the spectrum data with annotations
func (r *SpectrumRenderer) Render(spec *SpectrumData) (*image.RGBA, error) {
	borders := r.config.BorderConfig

	fullWidth := spec.Width + borders.Left + borders.Right
	fullHeight := spec.Height + borders.Top + borders.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	bounds := r.Bounds(spec)

	if !r.config.NoAnnotations {
		ann, err := newAnnotator(annotatorConfig{
			TimeFormat:     r.config.TimeFormat,
			DatetimeFormat: r.config.DatetimeFormat,
			Location:       r.config.Location,
			FontSize:       r.config.FontSize,
			Borders:        borders,
		})
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, spec, bounds); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	colors := NewColorMapper(r.config.ColorTheme, bounds)
	for y, row := range spec.Rows {
		for x, power := range row {
			img.Set(borders.Left+x, borders.Top+y, colors.GetColor(power))
		}
	}

	return img, nil
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImagePNG:
		return png.Encode(w, img)
	case ImageJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	default:
		return fmt.Errorf("unsupported image format: %s", format)
	}
}

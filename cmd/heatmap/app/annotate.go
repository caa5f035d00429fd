package app

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 72.0
	tickMarkHeight = 5
	pixelsPerLabel = 150.0 // horizontal spacing of frequency labels
	rowsPerLabel   = 60    // vertical spacing of time labels
)

type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingFull)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		}),
	}, nil
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) annotate(img *image.RGBA, spec *SpectrumData, bounds PowerBounds) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing frequency scale", func() error { return a.drawFrequencyScale(img, spec) }},
		{"drawing time scale", func() error { return a.drawTimeScale(img, spec) }},
		{"drawing info bar", func() error { return a.drawInfoBar(img, spec, bounds) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawFrequencyScale(img *image.RGBA, spec *SpectrumData) error {
	span := spec.FrequencyMax - spec.FrequencyMin
	if span <= 0 || spec.Width == 0 {
		return nil
	}

	step := niceFrequencyStep(span, spec.Width)
	textY := a.config.Borders.Top - tickMarkHeight - a.fontHeight()/2

	for freq := math.Ceil(spec.FrequencyMin/step) * step; freq <= spec.FrequencyMax; freq += step {
		x := a.config.Borders.Left + int((freq-spec.FrequencyMin)/span*float64(spec.Width-1))

		for y := a.config.Borders.Top - tickMarkHeight; y < a.config.Borders.Top; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatFrequency(freq)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, spec *SpectrumData) error {
	descent := a.fontFace.Metrics().Descent.Round()

	for y := 0; y < len(spec.Timestamps); y += rowsPerLabel {
		imgY := a.config.Borders.Top + y

		for x := a.config.Borders.Left - tickMarkHeight; x < a.config.Borders.Left; x++ {
			img.Set(x, imgY, color.Black)
		}

		label := spec.Timestamps[y].In(a.config.Location).Format(a.config.TimeFormat)
		textY := imgY + a.fontHeight()/2 - descent
		if _, err := a.context.DrawString(label, freetype.Pt(3, textY)); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, spec *SpectrumData, bounds PowerBounds) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Freq: %s - %s; ", formatFrequency(spec.FrequencyMin), formatFrequency(spec.FrequencyMax))
	fmt.Fprintf(&sb, "Time: %s - %s; ",
		spec.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		spec.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat))
	fmt.Fprintf(&sb, "%s sweeps; ", humanize.Comma(int64(spec.Height)))
	if spec.Width > 1 {
		fmt.Fprintf(&sb, "1px = %s; ", formatFrequency((spec.FrequencyMax-spec.FrequencyMin)/float64(spec.Width-1)))
	}
	fmt.Fprintf(&sb, "Power: %0.1f to %0.1f dB", bounds.Min, bounds.Max)

	descent := a.fontFace.Metrics().Descent.Round()
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-a.fontHeight())/2 - descent

	_, err := a.context.DrawString(sb.String(), freetype.Pt(a.config.Borders.Left, textY))
	return err
}

// niceFrequencyStep returns a decimal step, in MHz, giving roughly one label
// every pixelsPerLabel pixels.
func niceFrequencyStep(spanMHz float64, width int) float64 {
	target := spanMHz / max(1, float64(width)/pixelsPerLabel)

	step := math.Pow(10, math.Floor(math.Log10(target)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step*m >= target {
			return step * m
		}
	}
	return step * 10
}

func formatFrequency(mhz float64) string {
	return humanize.SIWithDigits(mhz*1e6, 3, "Hz")
}

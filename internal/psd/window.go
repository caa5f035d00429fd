package psd

import (
	"github.com/mjibson/go-dsp/window"
)

const (
	WindowRectangle WindowFunction = "rectangle"
	WindowBartlett  WindowFunction = "bartlett"
	WindowBlackman  WindowFunction = "blackman"
	WindowHamming   WindowFunction = "hamming"
	WindowHanning   WindowFunction = "hanning"

	// DefaultWindow is applied when no window function is configured
	DefaultWindow = WindowHamming
)

var windowFunctions = map[WindowFunction]func(int) []float64{
	WindowRectangle: window.Rectangular,
	WindowBartlett:  window.Bartlett,
	WindowBlackman:  window.Blackman,
	WindowHamming:   window.Hamming,
	WindowHanning:   window.Hann,
}

// WindowFunction names a tapering window applied to every PSD segment.
type WindowFunction string

func (w WindowFunction) String() string {
	return string(w)
}

func (w WindowFunction) IsValid() bool {
	_, ok := windowFunctions[w]
	return ok
}

// Coefficients returns n window coefficients, or nil for an unknown window.
func (w WindowFunction) Coefficients(n int) []float64 {
	fn, ok := windowFunctions[w]
	if !ok {
		return nil
	}
	return fn(n)
}

// WindowFunctions lists the supported window names.
func WindowFunctions() []WindowFunction {
	return []WindowFunction{WindowBartlett, WindowBlackman, WindowHamming, WindowHanning, WindowRectangle}
}

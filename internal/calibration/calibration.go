// Package calibration estimates the frequency error of a tuner from a sweep
// containing a known reference signal.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

var (
	// ErrNoSignal is returned when the spectrum holds no bins to search.
	ErrNoSignal = errors.New("no signal found")

	// ErrOutOfRange is returned when the reference lies outside the spectrum.
	ErrOutOfRange = errors.New("reference frequency out of range")
)

// Result is the outcome of a calibration.
type Result struct {
	Reference float64 `json:"reference"` // MHz
	Peak      float64 `json:"peak"`      // MHz, detected signal location
	Power     float64 `json:"power"`     // dB at the peak
	PPM       float64 `json:"ppm"`
}

// PPM locates the reference signal near freqMHz in bins and returns the
// correction that moves the detected peak onto it. Bins are scored with
// power * ((f - freq)^2 + 1) and the highest score is taken as the peak.
func PPM(bins []spectrum.Bin, freqMHz float64) (Result, error) {
	if freqMHz <= 0 {
		return Result{}, fmt.Errorf("%w: %f MHz", ErrOutOfRange, freqMHz)
	}

	lo, hi, ok := spectrum.Extent(bins)
	if !ok {
		return Result{}, ErrNoSignal
	}
	if freqMHz < lo || freqMHz > hi {
		return Result{}, fmt.Errorf("%w: %f MHz not within %f - %f MHz", ErrOutOfRange, freqMHz, lo, hi)
	}

	best := math.Inf(-1)
	var peak spectrum.Bin
	for _, b := range bins {
		d := b.Freq - freqMHz
		score := b.Power * (d*d + 1)
		if score > best {
			best = score
			peak = b
		}
	}

	return Result{
		Reference: freqMHz,
		Peak:      peak.Freq,
		Power:     peak.Power,
		PPM:       (freqMHz - peak.Freq) / freqMHz * 1e6,
	}, nil
}

// Apply corrects a frequency in MHz by ppm.
func Apply(freqMHz, ppm float64) float64 {
	return freqMHz + freqMHz*ppm/1e6
}

// Range returns the sweep range in Hz used to calibrate against freqMHz: the
// whole megahertz band containing it.
func Range(freqMHz float64) (startHz, stopHz float64) {
	start := math.Floor(freqMHz)
	stop := math.Ceil(freqMHz)
	if stop <= start {
		stop = start + 1
	}
	return start * 1e6, stop * 1e6
}

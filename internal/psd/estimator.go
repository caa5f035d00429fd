package psd

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"slices"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

const (
	MinFFTBins     = 16
	MaxFFTBins     = 32768
	DefaultFFTBins = 1024

	MaxOverlap = 0.75

	// powerFloor keeps empty bins finite once converted to dB.
	powerFloor = 1e-20
)

var ErrNoSamples = errors.New("no samples")

// FFTSizes returns the supported FFT sizes, all powers of two.
func FFTSizes() []int {
	var sizes []int
	for n := MinFFTBins; n <= MaxFFTBins; n *= 2 {
		sizes = append(sizes, n)
	}
	return sizes
}

// Config holds the estimator parameters. It is fixed for a run.
type Config struct {
	FFTBins        int
	Overlap        float64 // fraction of a segment shared with the next one
	Window         WindowFunction
	SampleRate     float64 // Hz
	CalibrationPPM float64
	LevelOffset    float64 // dB
}

func (c *Config) Validate() error {
	if c.FFTBins < MinFFTBins || c.FFTBins > MaxFFTBins || c.FFTBins&(c.FFTBins-1) != 0 {
		return fmt.Errorf("psd.Config: FFT size must be a power of two between %d and %d: %d given",
			MinFFTBins, MaxFFTBins, c.FFTBins)
	}
	if c.Overlap < 0 || c.Overlap > MaxOverlap {
		return fmt.Errorf("psd.Config: overlap must be between 0 and %0.2f: %0.2f given", MaxOverlap, c.Overlap)
	}
	if !c.Window.IsValid() {
		return fmt.Errorf("psd.Config: invalid window function: '%s'", c.Window)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("psd.Config: sample rate must be positive: %0.0f", c.SampleRate)
	}
	return nil
}

// Estimator turns capture windows into calibrated spectral fragments using
// Welch's averaged periodogram. It is safe for concurrent use.
type Estimator struct {
	config   Config
	window   []float64
	noverlap int
	scale    float64 // 1 / (Fs * sum(w^2)), Fs in MHz
	level    float64 // linear level offset

	ffts sync.Pool
}

func New(config Config) (*Estimator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	w := config.Window.Coefficients(config.FFTBins)

	var windowPower float64
	for _, v := range w {
		windowPower += v * v
	}
	if windowPower == 0 {
		return nil, fmt.Errorf("psd.Config: window '%s' has no energy", config.Window)
	}

	e := Estimator{
		config:   config,
		window:   w,
		noverlap: int(config.Overlap * float64(config.FFTBins)),
		scale:    1 / (config.SampleRate / 1e6 * windowPower),
		level:    math.Pow(10, config.LevelOffset/10),
	}
	e.ffts.New = func() any {
		return fourier.NewCmplxFFT(config.FFTBins)
	}

	return &e, nil
}

// PSD returns the two-sided power spectral density of samples, ordered from
// -Fs/2 to Fs/2. Frequencies are relative to the tuned center in MHz and
// power is linear, scaled by frequency.
func (e *Estimator) PSD(samples []complex128) (freqs, power []float64, err error) {
	if len(samples) == 0 {
		return nil, nil, ErrNoSamples
	}

	nfft := e.config.FFTBins
	if len(samples) < nfft {
		padded := make([]complex128, nfft)
		copy(padded, samples)
		samples = padded
	}

	step := nfft - e.noverlap
	segments := (len(samples) - e.noverlap) / step

	fft := e.ffts.Get().(*fourier.CmplxFFT)
	defer e.ffts.Put(fft)

	acc := make([]float64, nfft)
	seg := make([]complex128, nfft)
	coeffs := make([]complex128, nfft)
	for s := 0; s < segments; s++ {
		offset := s * step
		for i := range seg {
			seg[i] = samples[offset+i] * complex(e.window[i], 0)
		}

		coeffs = fft.Coefficients(coeffs, seg)
		for i, c := range coeffs {
			a := cmplx.Abs(c)
			acc[i] += a * a
		}
	}

	fs := e.config.SampleRate / 1e6
	norm := e.scale / float64(segments)

	freqs = make([]float64, nfft)
	power = make([]float64, nfft)
	for i := range power {
		k := (i + nfft/2) % nfft
		freqs[i] = float64(i-nfft/2) * fs / float64(nfft)
		power[i] = acc[k] * norm
	}

	return freqs, power, nil
}

// Estimate computes the calibrated fragment of a capture window. Frequencies
// are absolute in MHz and power is in dB.
func (e *Estimator) Estimate(w *sdr.CaptureWindow) (*spectrum.Fragment, error) {
	freqs, power, err := e.PSD(w.Samples)
	if err != nil {
		return nil, sdr.NewProcessingError(w.CenterFreq, err)
	}

	center := w.CenterFreq / 1e6
	bins := make([]spectrum.Bin, len(freqs))
	for i, f := range freqs {
		abs := f + center
		abs += abs * e.config.CalibrationPPM / 1e6

		p := power[i] * e.level
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, sdr.NewProcessingError(w.CenterFreq, fmt.Errorf("non-finite power at %0.6f MHz", abs))
		}

		bins[i] = spectrum.Bin{
			Freq:  abs,
			Power: 10 * math.Log10(max(p, powerFloor)),
		}
	}

	if !slices.IsSortedFunc(bins, spectrum.CompareBins) {
		slices.SortFunc(bins, spectrum.CompareBins)
	}

	return &spectrum.Fragment{
		Timestamp:  w.Timestamp,
		CenterFreq: w.CenterFreq,
		Bins:       bins,
	}, nil
}

// BinWidth returns the width of a single FFT bin in Hz.
func (e *Estimator) BinWidth() float64 {
	return e.config.SampleRate / float64(e.config.FFTBins)
}

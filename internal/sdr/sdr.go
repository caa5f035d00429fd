package sdr

import (
	"context"
	"time"
)

const (
	// SampleRate is the IQ sample rate used for every capture, in Hz.
	SampleRate = 2_000_000

	// Bandwidth is the usable bandwidth of a single capture window, in Hz.
	// Sweeps step by half of it.
	Bandwidth = 500_000

	// DefaultBandOffset is the distance between the tuned center and the
	// closest retained side-band edge, in Hz.
	DefaultBandOffset = 250_000
)

// Tuner is a handle to a capture device, either a local dongle or a remote
// rtl_tcp server. Implementations are not safe for concurrent use: a handle is
// owned by a single scanning goroutine.
type Tuner interface {
	// SetSampleRate sets the IQ sample rate in Hz.
	SetSampleRate(hz float64) error

	// SetCenterFreq tunes the device to the given frequency in Hz.
	SetCenterFreq(hz float64) error

	// SetGain sets the tuner gain in dB. A nil gain selects automatic gain.
	SetGain(db *float64) error

	// ReadSamples blocks until n complex samples are captured. It cannot be
	// interrupted once started.
	ReadSamples(n int) ([]complex128, error)

	// TunerType reports the tuner chip, if known.
	TunerType() TunerType

	// Close releases the device.
	Close() error
}

// Opener opens a Tuner. It is called once per scan run.
type Opener func(ctx context.Context) (Tuner, error)

// CaptureWindow is a block of raw samples captured at one tuned frequency.
type CaptureWindow struct {
	Timestamp  time.Time    // Sweep timestamp shared by every window of a sweep
	CenterFreq float64      // Tuned center frequency in Hz, without the LO offset
	Samples    []complex128 // Normalized IQ samples
}

// SampleCount returns the number of samples in the window.
func (w *CaptureWindow) SampleCount() int {
	return len(w.Samples)
}

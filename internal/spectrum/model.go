package spectrum

import (
	"cmp"
	"time"
)

// ScanSession is a single scan run as recorded in storage.
type ScanSession struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"runID"`            // Unique run identifier
	StartTime  time.Time `json:"startTime"`        // When the run began
	DeviceType string    `json:"deviceType"`       // "rtl-sdr" or "rtl-tcp"
	DeviceID   string    `json:"deviceID"`         // Device name from configuration
	Tuner      string    `json:"tuner"`            // Tuner chip, if known
	Config     *string   `json:"config,omitempty"` // Session configuration in JSON format
}

// Bin is a single spectrum point.
type Bin struct {
	Freq  float64 `json:"freq"`  // MHz
	Power float64 `json:"power"` // dB
}

// CompareBins orders bins by frequency.
func CompareBins(a, b Bin) int {
	return cmp.Compare(a.Freq, b.Freq)
}

// Fragment is the calibrated spectrum of a single capture window, ordered by
// frequency.
type Fragment struct {
	Timestamp  time.Time // Sweep timestamp
	CenterFreq float64   // Tuned center in Hz
	Bins       []Bin
}

// Spectrum is a read-only copy of one sweep's spectrum.
type Spectrum struct {
	Timestamp time.Time `json:"timestamp"`
	Bins      []Bin     `json:"bins"`
}

// Location is a position fix associated with a sweep timestamp.
type Location struct {
	Timestamp time.Time `json:"timestamp"` // Sweep timestamp the fix is tagged against
	FixTime   time.Time `json:"fixTime"`   // When the fix was taken
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  *float64  `json:"altitude,omitempty"`
}

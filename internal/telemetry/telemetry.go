package telemetry

import (
	"time"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

// Provider returns the latest known telemetry, or nil when there is none yet.
type Provider interface {
	Get() *Telemetry
}

// Telemetry is a position fix of the receiving station
type Telemetry struct {
	Timestamp    time.Time `json:"timestamp"`              // Timestamp of the fix
	Latitude     *float64  `json:"latitude,omitempty"`     // GPS latitude in degrees
	Longitude    *float64  `json:"longitude,omitempty"`    // GPS longitude in degrees
	Altitude     *float64  `json:"altitude,omitempty"`     // Altitude in meters
	GroundSpeed  *float64  `json:"groundSpeed,omitempty"`  // Ground speed in m/s
	GroundCourse *float64  `json:"groundCourse,omitempty"` // Ground course (heading) in degrees
}

// HasFix reports whether t carries a horizontal position.
func (t *Telemetry) HasFix() bool {
	return t != nil && t.Latitude != nil && t.Longitude != nil
}

// Location tags the fix against a sweep timestamp. ok is false when t has no
// position.
func (t *Telemetry) Location(sweep time.Time) (loc spectrum.Location, ok bool) {
	if !t.HasFix() {
		return spectrum.Location{}, false
	}

	return spectrum.Location{
		Timestamp: sweep,
		FixTime:   t.Timestamp,
		Latitude:  *t.Latitude,
		Longitude: *t.Longitude,
		Altitude:  t.Altitude,
	}, true
}

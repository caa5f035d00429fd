package sdr

import (
	"math"
	"slices"
)

// TunerType identifies the tuner chip of a dongle, as numbered by librtlsdr.
type TunerType uint32

const (
	TunerUnknown TunerType = iota
	TunerE4000
	TunerFC0012
	TunerFC0013
	TunerFC2580
	TunerR820T
	TunerR828D
)

var tunerNames = []string{"Unknown", "E4000", "FC0012", "FC0013", "FC2580", "R820T", "R828D"}

func (t TunerType) String() string {
	if int(t) < len(tunerNames) {
		return tunerNames[t]
	}
	return tunerNames[TunerUnknown]
}

func (t TunerType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Gain tables in dB, as exposed by librtlsdr.
var tunerGains = map[TunerType][]float64{
	TunerE4000: {-1.0, 1.5, 4.0, 6.5, 9.0, 11.5, 14.0, 16.5, 19.0, 21.5, 24.0, 29.0, 34.0, 42.0},
	TunerFC0012: {-9.9, -4.0, 7.1, 17.9, 19.2},
	TunerFC0013: {-9.9, -7.3, -6.5, -6.3, -6.0, -5.8, -5.4, 5.8, 6.1, 6.3, 6.5, 6.7,
		6.8, 7.0, 7.1, 17.9, 18.1, 18.2, 18.4, 18.6, 18.8, 19.1, 19.7},
	TunerR820T: {0.0, 0.9, 1.4, 2.7, 3.7, 7.7, 8.7, 12.5, 14.4, 15.7, 16.6, 19.7, 20.7,
		22.9, 25.4, 28.0, 29.7, 32.8, 33.8, 36.4, 37.2, 38.6, 40.2, 42.1, 43.4, 43.9,
		44.5, 48.0, 49.6},
}

func init() {
	tunerGains[TunerR828D] = tunerGains[TunerR820T]
}

// Gains returns the supported gains of a tuner in ascending order, or nil if
// the tuner is unknown.
func (t TunerType) Gains() []float64 {
	return slices.Clone(tunerGains[t])
}

// NearestGain returns the value in gains closest to gain. It returns gain
// unchanged when gains is empty.
func NearestGain(gain float64, gains []float64) float64 {
	if len(gains) == 0 {
		return gain
	}

	nearest := gains[0]
	for _, g := range gains[1:] {
		if math.Abs(g-gain) < math.Abs(nearest-gain) {
			nearest = g
		}
	}
	return nearest
}

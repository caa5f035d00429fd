package app

import (
	"math"
	"time"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
	"github.com/roman-kulish/rtlsdr-scanner/internal/storage"
)

// SpectrumData is a waterfall of stored sweeps, one row per sweep and one
// column per frequency step. Cells without a bin hold NaN.
type SpectrumData struct {
	Width, Height                int
	FrequencyMin, FrequencyMax   float64 // MHz
	TimestampStart, TimestampEnd time.Time
	Histogram                    *PowerHistogram
	Rows                         [][]float64
	Timestamps                   []time.Time // of every row
	Locations                    int // sweeps tagged with a position
}

// NewSpectrumData creates a waterfall of the given width over [minMHz, maxMHz].
func NewSpectrumData(width int, minMHz, maxMHz float64) *SpectrumData {
	return &SpectrumData{
		Width:        width,
		FrequencyMin: minMHz,
		FrequencyMax: maxMHz,
		Histogram:    NewPowerHistogram(),
	}
}

// column returns the column of freq, or false when it lies outside the extent.
func (s *SpectrumData) column(freq float64) (int, bool) {
	if freq < s.FrequencyMin || freq > s.FrequencyMax {
		return 0, false
	}
	if s.FrequencyMax == s.FrequencyMin {
		return 0, true
	}

	x := int(math.Round((freq - s.FrequencyMin) / (s.FrequencyMax - s.FrequencyMin) * float64(s.Width-1)))
	return x, true
}

// Add appends a sweep as the next row.
func (s *SpectrumData) Add(record *storage.SweepRecord) {
	row := make([]float64, s.Width)
	for i := range row {
		row[i] = math.NaN()
	}

	for _, b := range record.Spectrum.Bins {
		x, ok := s.column(b.Freq)
		if !ok {
			continue
		}
		// several bins may share a column, keep the strongest
		if math.IsNaN(row[x]) || b.Power > row[x] {
			row[x] = b.Power
		}
		s.Histogram.Update(b.Power)
	}

	ts := record.Spectrum.Timestamp
	if s.TimestampStart.IsZero() || ts.Before(s.TimestampStart) {
		s.TimestampStart = ts
	}
	if s.TimestampEnd.IsZero() || ts.After(s.TimestampEnd) {
		s.TimestampEnd = ts
	}
	if record.Location != nil {
		s.Locations++
	}

	s.Rows = append(s.Rows, row)
	s.Timestamps = append(s.Timestamps, ts)
	s.Height++
}

// Peak returns the strongest cell of the waterfall.
func (s *SpectrumData) Peak() (spectrum.Bin, bool) {
	var peak spectrum.Bin
	found := false

	for _, row := range s.Rows {
		for x, p := range row {
			if math.IsNaN(p) || (found && p <= peak.Power) {
				continue
			}
			peak = spectrum.Bin{Freq: s.frequency(x), Power: p}
			found = true
		}
	}
	return peak, found
}

func (s *SpectrumData) frequency(x int) float64 {
	if s.Width <= 1 {
		return s.FrequencyMin
	}
	return s.FrequencyMin + float64(x)/float64(s.Width-1)*(s.FrequencyMax-s.FrequencyMin)
}

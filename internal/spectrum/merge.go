package spectrum

// Merger folds capture fragments into a sweep, keeping only the clean
// side-bands of every fragment.
type Merger struct {
	offset    float64 // MHz
	bandwidth float64 // MHz
	start     float64 // MHz, inclusive
	stop      float64 // MHz, exclusive

	alert *float64
}

// NewMerger creates a merger for the range [startHz, stopHz). offsetHz is
// the distance from the tuned center to the retained side-bands and
// bandwidthHz the usable capture bandwidth.
func NewMerger(startHz, stopHz, offsetHz, bandwidthHz float64) *Merger {
	return &Merger{
		offset:    offsetHz / 1e6,
		bandwidth: bandwidthHz / 1e6,
		start:     startHz / 1e6,
		stop:      stopHz / 1e6,
	}
}

// WithAlert makes Merge report bins whose merged power exceeds level dB.
func (m *Merger) WithAlert(level float64) *Merger {
	m.alert = &level
	return m
}

// SideBands returns the retained upper and lower bands, in MHz, of a fragment
// captured at centerHz.
func (m *Merger) SideBands(centerHz float64) (upper, lower [2]float64) {
	c := centerHz / 1e6
	upper = [2]float64{c + m.offset, c + m.offset + m.bandwidth/2}
	lower = [2]float64{c - m.offset - m.bandwidth/2, c - m.offset}
	return upper, lower
}

// Select returns the bins of f inside its side-bands and the sweep range.
func (m *Merger) Select(f *Fragment) []Bin {
	upper, lower := m.SideBands(f.CenterFreq)

	var selected []Bin
	for _, b := range f.Bins {
		if b.Freq < m.start || b.Freq >= m.stop {
			continue
		}
		if (b.Freq >= upper[0] && b.Freq <= upper[1]) || (b.Freq >= lower[0] && b.Freq <= lower[1]) {
			selected = append(selected, b)
		}
	}
	return selected
}

// Merge folds the selected bins of f into s. It returns the merged bins above
// the alert level, if one is set.
func (m *Merger) Merge(s *Sweep, f *Fragment) (merged int, alerts []Bin) {
	for _, b := range m.Select(f) {
		power := s.Add(b.Freq, b.Power)
		merged++

		if m.alert != nil && power > *m.alert {
			alerts = append(alerts, Bin{Freq: b.Freq, Power: power})
		}
	}
	return merged, alerts
}

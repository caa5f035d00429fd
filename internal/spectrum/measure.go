package spectrum

import "math"

// Measurement summarises the power of a spectrum over a frequency extent.
type Measurement struct {
	Count int     `json:"count"`
	Min   Bin     `json:"min"`
	Max   Bin     `json:"max"`   // Peak
	Avg   float64 `json:"avg"`   // dB of the mean linear power
	GMean float64 `json:"gmean"` // dB of the geometric mean of linear power
}

// Measure summarises bins within [startMHz, stopMHz]. It returns false when
// no bin falls inside the extent.
func Measure(bins []Bin, startMHz, stopMHz float64) (Measurement, bool) {
	var m Measurement
	var linear, db float64

	for _, b := range bins {
		if b.Freq < startMHz || b.Freq > stopMHz {
			continue
		}

		if m.Count == 0 || b.Power < m.Min.Power {
			m.Min = b
		}
		if m.Count == 0 || b.Power > m.Max.Power {
			m.Max = b
		}

		linear += math.Pow(10, b.Power/10)
		db += b.Power
		m.Count++
	}

	if m.Count == 0 {
		return Measurement{}, false
	}

	m.Avg = 10 * math.Log10(linear/float64(m.Count))
	m.GMean = db / float64(m.Count)
	return m, true
}

// Extent returns the lowest and highest frequency of bins, which must be sorted.
func Extent(bins []Bin) (lo, hi float64, ok bool) {
	if len(bins) == 0 {
		return 0, 0, false
	}
	return bins[0].Freq, bins[len(bins)-1].Freq, true
}

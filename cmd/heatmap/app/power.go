package app

import "math"

const (
	defaultMinPower = -120.0 // dB
	defaultMaxPower = -20.0  // dB

	// With 20 samples the 5th percentile is the first sample and the 95th
	// the 19th.
	minimumSampleCount = 20

	minimumRange = 30 // dB
)

// PowerBounds is the power range mapped onto the color scale
type PowerBounds struct {
	Min  float64 // dB
	Max  float64 // dB
	Mean float64 // dB
}

func defaultPowerBounds() PowerBounds {
	return PowerBounds{
		Min:  defaultMinPower,
		Max:  defaultMaxPower,
		Mean: (defaultMinPower + defaultMaxPower) / 2,
	}
}

// PowerHistogram counts power values in 1 dB bins
type PowerHistogram struct {
	bins   map[int]uint32
	total  uint64
	minBin int
	maxBin int
}

func NewPowerHistogram() *PowerHistogram {
	return &PowerHistogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

// halve scales all counts down by a factor of 2 to avoid overflow
func (h *PowerHistogram) halve() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32

	for bin, n := range h.bins {
		if n /= 2; n == 0 {
			delete(h.bins, bin)
			continue
		}
		h.bins[bin] = n
		h.minBin = min(h.minBin, bin)
		h.maxBin = max(h.maxBin, bin)
	}
	h.total /= 2
}

func (h *PowerHistogram) Update(power float64) {
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return
	}

	bin := int(math.Floor(power))
	if h.bins[bin] == math.MaxUint32 || h.total == math.MaxUint64 {
		h.halve()
	}

	h.bins[bin]++
	h.total++
	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

func (h *PowerHistogram) Count() uint64 {
	return h.total
}

// Bounds returns the 5th to 95th percentile power range, widened to at least
// 30 dB and padded by 10%.
func (h *PowerHistogram) Bounds() PowerBounds {
	if h.total < minimumSampleCount {
		return defaultPowerBounds()
	}

	target := h.total * 5 / 100

	var count uint64
	lo, hi := h.minBin, h.maxBin
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		if count += uint64(h.bins[bin]); count >= target {
			lo = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		if count += uint64(h.bins[bin]); count >= target {
			hi = bin
			break
		}
	}

	var sum float64
	for bin, n := range h.bins {
		sum += float64(bin) * float64(n)
	}

	if hi-lo < minimumRange {
		center := (hi + lo) / 2
		lo = center - minimumRange/2
		hi = center + minimumRange/2
	}

	margin := (hi - lo) / 10
	return PowerBounds{
		Min:  float64(lo - margin),
		Max:  float64(hi + margin),
		Mean: sum / float64(h.total),
	}
}

// Override replaces the bounds with manually configured limits.
func (b PowerBounds) Override(minPower, maxPower *float64) PowerBounds {
	if minPower != nil {
		b.Min = *minPower
	}
	if maxPower != nil {
		b.Max = *maxPower
	}
	return b
}

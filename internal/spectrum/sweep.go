package spectrum

import (
	"math"
	"slices"
	"time"
)

// freqKey quantizes a frequency in MHz to millihertz so that bins computed
// from different capture windows land on the same key.
func freqKey(mhz float64) int64 {
	return int64(math.Round(mhz * 1e9))
}

type accumulator struct {
	freq  float64
	sum   float64
	count int
}

func (a *accumulator) mean() float64 {
	return a.sum / float64(a.count)
}

// Sweep is the spectrum of one pass over the frequency range. Every bin keeps
// a running mean of all contributions, so the result does not depend on the
// order fragments are merged in.
//
// Sweep is not safe for concurrent use.
type Sweep struct {
	Timestamp time.Time

	bins  map[int64]*accumulator
	keys  []int64
	dirty bool
}

func NewSweep(timestamp time.Time) *Sweep {
	return &Sweep{
		Timestamp: timestamp,
		bins:      make(map[int64]*accumulator),
	}
}

// Add folds one power value into the bin at freq and returns the bin's new mean.
func (s *Sweep) Add(freq, power float64) float64 {
	key := freqKey(freq)

	acc, ok := s.bins[key]
	if !ok {
		acc = &accumulator{freq: freq}
		s.bins[key] = acc
		s.keys = append(s.keys, key)
		s.dirty = true
	}

	acc.sum += power
	acc.count++
	return acc.mean()
}

// Set replaces the bin at freq with a single value.
func (s *Sweep) Set(freq, power float64) {
	key := freqKey(freq)

	acc, ok := s.bins[key]
	if !ok {
		acc = &accumulator{freq: freq}
		s.bins[key] = acc
		s.keys = append(s.keys, key)
		s.dirty = true
	}

	acc.sum = power
	acc.count = 1
}

// Power returns the mean power at freq.
func (s *Sweep) Power(freq float64) (float64, bool) {
	acc, ok := s.bins[freqKey(freq)]
	if !ok {
		return 0, false
	}
	return acc.mean(), true
}

func (s *Sweep) Len() int {
	return len(s.bins)
}

// Bins returns the spectrum in ascending frequency order.
func (s *Sweep) Bins() []Bin {
	s.sort()

	bins := make([]Bin, len(s.keys))
	for i, key := range s.keys {
		acc := s.bins[key]
		bins[i] = Bin{Freq: acc.freq, Power: acc.mean()}
	}
	return bins
}

// Spectrum returns a copy of the sweep suitable for publishing.
func (s *Sweep) Spectrum() Spectrum {
	return Spectrum{Timestamp: s.Timestamp, Bins: s.Bins()}
}

// Clone returns a deep copy of the sweep.
func (s *Sweep) Clone() *Sweep {
	c := NewSweep(s.Timestamp)
	for _, key := range s.keys {
		acc := *s.bins[key]
		c.bins[key] = &acc
	}
	c.keys = slices.Clone(s.keys)
	c.dirty = s.dirty
	return c
}

// Flatten returns a deep copy of the sweep in which every bin holds its mean
// as a single sample.
func (s *Sweep) Flatten() *Sweep {
	c := s.Clone()
	for _, acc := range c.bins {
		acc.sum = acc.mean()
		acc.count = 1
	}
	return c
}

func (s *Sweep) sort() {
	if s.dirty {
		slices.Sort(s.keys)
		s.dirty = false
	}
}

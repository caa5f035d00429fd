package scan

import (
	"math"

	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
)

// Plan is the sequence of center frequencies visited by a sweep. The range
// is extended on both sides so that the retained side-bands of the captures
// cover [start, stop].
type Plan struct {
	Low   float64 // first center in Hz
	High  float64 // upper bound of centers in Hz
	Step  float64 // Hz
	Steps int
}

func NewPlan(startHz, stopHz, offsetHz float64) Plan {
	p := Plan{
		Low:  startHz - offsetHz - sdr.Bandwidth,
		High: stopHz + offsetHz + 2*sdr.Bandwidth,
		Step: sdr.Bandwidth / 2,
	}
	p.Steps = int(math.Floor((p.High-p.Low)/p.Step+1e-9)) + 1
	return p
}

// Freq returns the center frequency of step i.
func (p Plan) Freq(i int) float64 {
	return p.Low + float64(i)*p.Step
}

// Frequencies returns every center frequency in order.
func (p Plan) Frequencies() []float64 {
	freqs := make([]float64, p.Steps)
	for i := range freqs {
		freqs[i] = p.Freq(i)
	}
	return freqs
}

package spectrum

import (
	"math"
	"testing"
	"time"
)

// fragmentAt builds a fragment with bins every 1953.125 Hz across a 2 MHz
// capture centered on centerHz, all at the given power.
func fragmentAt(centerHz, power float64) *Fragment {
	const nfft = 1024
	step := 2.0 / nfft

	f := Fragment{CenterFreq: centerHz}
	for i := 0; i < nfft; i++ {
		f.Bins = append(f.Bins, Bin{
			Freq:  centerHz/1e6 - 1 + float64(i)*step,
			Power: power,
		})
	}
	return &f
}

func TestMerger_Select(t *testing.T) {
	const offset, bandwidth = 250e3, 500e3
	m := NewMerger(80e6, 120e6, offset, bandwidth)

	for _, center := range []float64{86.25e6, 99.5e6, 109.25e6} {
		selected := m.Select(fragmentAt(center, -50))
		if len(selected) == 0 {
			t.Fatalf("center %.0f: expected selected bins", center)
		}

		c := center / 1e6
		for _, b := range selected {
			upper := b.Freq >= c+offset/1e6 && b.Freq <= c+(offset+bandwidth/2)/1e6
			lower := b.Freq >= c-(offset+bandwidth/2)/1e6 && b.Freq <= c-offset/1e6
			if !upper && !lower {
				t.Errorf("center %.0f: bin %f outside side-bands", center, b.Freq)
			}
			if b.Freq > c-offset/1e6 && b.Freq < c+offset/1e6 {
				t.Errorf("center %.0f: bin %f inside the rejected center region", center, b.Freq)
			}
		}
	}
}

func TestMerger_SelectRange(t *testing.T) {
	m := NewMerger(100e6, 100.5e6, 250e3, 500e3)

	for _, b := range m.Select(fragmentAt(100.25e6, -50)) {
		if b.Freq < 100 || b.Freq >= 100.5 {
			t.Errorf("bin %f outside the sweep range", b.Freq)
		}
	}
}

func TestMerger_MergeOrderIndependent(t *testing.T) {
	m := NewMerger(80e6, 120e6, 250e3, 500e3)

	// 100 MHz upper side-band [100.25, 100.5] overlaps 100.75 MHz lower
	// side-band [100.25, 100.5] entirely
	a := fragmentAt(100e6, -40)
	b := fragmentAt(100.75e6, -60)

	forward := NewSweep(time.Unix(0, 0))
	m.Merge(forward, a)
	m.Merge(forward, b)

	backward := NewSweep(time.Unix(0, 0))
	m.Merge(backward, b)
	m.Merge(backward, a)

	p1, ok1 := forward.Power(100.375)
	p2, ok2 := backward.Power(100.375)
	if !ok1 || !ok2 {
		t.Fatal("expected a shared bin at 100.375 MHz")
	}
	if p1 != -50 || p2 != -50 {
		t.Errorf("expected (p1+p2)/2 = -50, got %f and %f", p1, p2)
	}

	fb, bb := forward.Bins(), backward.Bins()
	if len(fb) != len(bb) {
		t.Fatalf("expected equal spectra, got %d and %d bins", len(fb), len(bb))
	}
	for i := range fb {
		if fb[i] != bb[i] {
			t.Errorf("bin %d differs: %v vs %v", i, fb[i], bb[i])
		}
	}
}

func TestMerger_RunningMean(t *testing.T) {
	m := NewMerger(80e6, 120e6, 250e3, 500e3)
	s := NewSweep(time.Unix(0, 0))

	// three contributions to the same bins: a pairwise average would
	// depend on order, a running mean does not
	for _, p := range []float64{-30, -60, -90} {
		m.Merge(s, fragmentAt(100e6, p))
	}

	if p, _ := s.Power(100.375); math.Abs(p-(-60)) > 1e-9 {
		t.Errorf("expected mean -60, got %f", p)
	}
}

func TestMerger_Alerts(t *testing.T) {
	m := NewMerger(80e6, 120e6, 250e3, 500e3).WithAlert(-20)
	s := NewSweep(time.Unix(0, 0))

	if _, alerts := m.Merge(s, fragmentAt(100e6, -50)); len(alerts) != 0 {
		t.Errorf("expected no alerts, got %d", len(alerts))
	}

	merged, alerts := m.Merge(s, fragmentAt(102e6, -10))
	if len(alerts) != merged || merged == 0 {
		t.Errorf("expected every merged bin to alert, got %d of %d", len(alerts), merged)
	}
}

func TestSweep_Bins(t *testing.T) {
	s := NewSweep(time.Unix(100, 0))
	s.Add(100.2, -10)
	s.Add(100.1, -20)
	s.Add(100.3, -30)
	s.Set(100.1, -5)

	bins := s.Bins()
	expected := []Bin{{100.1, -5}, {100.2, -10}, {100.3, -30}}
	if len(bins) != len(expected) {
		t.Fatalf("expected %d bins, got %d", len(expected), len(bins))
	}
	for i, b := range expected {
		if bins[i] != b {
			t.Errorf("bin %d: expected %v, got %v", i, b, bins[i])
		}
	}

	clone := s.Clone()
	clone.Add(100.4, 0)
	if s.Len() != 3 || clone.Len() != 4 {
		t.Errorf("clone must not share state: %d, %d", s.Len(), clone.Len())
	}
}

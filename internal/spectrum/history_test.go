package spectrum

import (
	"testing"
	"time"
)

func sweepOf(ts int64, bins ...Bin) *Sweep {
	s := NewSweep(time.Unix(ts, 0))
	for _, b := range bins {
		s.Add(b.Freq, b.Power)
	}
	return s
}

func TestHistory_Average(t *testing.T) {
	h, err := NewHistory(PolicyAverage, 0)
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}

	sweeps := []*Sweep{
		sweepOf(100, Bin{100.0, -40}, Bin{100.1, -50}),
		sweepOf(101, Bin{100.0, -60}, Bin{100.2, -70}),
		sweepOf(102, Bin{100.0, -80}),
	}
	for i, s := range sweeps {
		if _, err := h.Add(s); err != nil {
			t.Fatalf("Failed to add sweep %d: %v", i, err)
		}
		if h.Len() != 1 {
			t.Fatalf("Expected history size 1 after sweep %d, got %d", i, h.Len())
		}
	}

	latest := h.Latest()
	if !latest.Timestamp.Equal(time.Unix(100, 0)) {
		t.Errorf("Expected collapse target to keep the oldest timestamp, got %s", latest.Timestamp)
	}

	expected := map[float64]float64{
		100.0: -60, // (-40 - 60 - 80) / 3
		100.1: -50,
		100.2: -70,
	}
	for freq, power := range expected {
		if got, ok := latest.Power(freq); !ok || got != power {
			t.Errorf("Frequency %0.1f MHz: expected %0.1f dB, got %0.1f (present %v)", freq, power, got, ok)
		}
	}
}

func TestHistory_AverageOverlappedBins(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		second int64
	}{
		{name: "average", policy: PolicyAverage, second: 101},
		{name: "retain same second", policy: PolicyRetain, second: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHistory(tt.policy, 5)
			if err != nil {
				t.Fatalf("Failed to create history: %v", err)
			}

			// 100.0 MHz sits on a fragment boundary and got two contributions
			first := sweepOf(100, Bin{100.0, 10}, Bin{100.0, 20}, Bin{100.1, 15})
			second := sweepOf(tt.second, Bin{100.0, 40}, Bin{100.1, 40})

			_, _ = h.Add(first)
			_, _ = h.Add(second)

			if h.Len() != 1 {
				t.Fatalf("Expected a single entry, got %d", h.Len())
			}
			for _, freq := range []float64{100.0, 100.1} {
				if got, _ := h.Latest().Power(freq); got != 27.5 {
					t.Errorf("Frequency %0.1f MHz: expected 27.5 dB, got %0.3f", freq, got)
				}
			}
		})
	}
}

func TestHistory_RetainEviction(t *testing.T) {
	h, err := NewHistory(PolicyRetain, 3)
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}

	// out of order on purpose
	order := []int64{105, 101, 103, 102, 104}
	var evicted []time.Time
	for _, ts := range order {
		ev, err := h.Add(sweepOf(ts, Bin{100, float64(-ts)}))
		if err != nil {
			t.Fatalf("Failed to add sweep %d: %v", ts, err)
		}
		evicted = append(evicted, ev...)

		if h.Len() > 3 {
			t.Fatalf("History exceeded retainMax: %d", h.Len())
		}
	}

	expectedEvicted := []int64{101, 102}
	if len(evicted) != len(expectedEvicted) {
		t.Fatalf("Expected %d evictions, got %d", len(expectedEvicted), len(evicted))
	}
	for i, ts := range expectedEvicted {
		if evicted[i].Unix() != ts {
			t.Errorf("Eviction %d: expected %d, got %d", i, ts, evicted[i].Unix())
		}
	}

	expectedKept := []int64{103, 104, 105}
	kept := h.Timestamps()
	for i, ts := range expectedKept {
		if kept[i].Unix() != ts {
			t.Errorf("Entry %d: expected %d, got %d", i, ts, kept[i].Unix())
		}
	}
}

func TestHistory_RetainSameSecond(t *testing.T) {
	h, _ := NewHistory(PolicyRetain, 5)

	_, _ = h.Add(sweepOf(100, Bin{100, -20}))
	_, _ = h.Add(sweepOf(100, Bin{100, -40}))

	if h.Len() != 1 {
		t.Fatalf("Expected sweeps of the same second to share an entry, got %d", h.Len())
	}
	if p, _ := h.Latest().Power(100); p != -30 {
		t.Errorf("Expected -30 dB, got %0.1f", p)
	}
}

func TestHistory_MaxHold(t *testing.T) {
	h, err := NewHistory(PolicyMaxHold, 2)
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}

	_, _ = h.Add(sweepOf(100, Bin{100.0, -40}, Bin{100.1, -80}))
	_, _ = h.Add(sweepOf(101, Bin{100.0, -60}, Bin{100.1, -50}, Bin{100.2, -70}))

	latest := h.Latest()
	expected := map[float64]float64{100.0: -40, 100.1: -50, 100.2: -70}
	for freq, power := range expected {
		if got, _ := latest.Power(freq); got != power {
			t.Errorf("Frequency %0.1f MHz: expected %0.1f dB, got %0.1f", freq, power, got)
		}
	}

	ev, _ := h.Add(sweepOf(102, Bin{100.0, -90}))
	if len(ev) != 1 || ev[0].Unix() != 100 {
		t.Errorf("Expected timestamp 100 to be evicted, got %v", ev)
	}
	if p, _ := h.Latest().Power(100.0); p != -40 {
		t.Errorf("Expected the held maximum -40 dB, got %0.1f", p)
	}
}

func TestHistory_AddDoesNotAlias(t *testing.T) {
	h, _ := NewHistory(PolicyRetain, 5)

	s := sweepOf(100, Bin{100, -20})
	_, _ = h.Add(s)
	s.Add(100, -100)

	if p, _ := h.Latest().Power(100); p != -20 {
		t.Errorf("History must hold a copy of the sweep, got %0.1f", p)
	}
}

func TestHistory_EdgeCases(t *testing.T) {
	h, err := NewHistory(PolicyRetain, 5)
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}

	if _, err := h.Add(nil); err == nil {
		t.Error("Expected error when adding nil sweep")
	}
	if h.Latest() != nil {
		t.Error("Latest on empty history should return nil")
	}
	if len(h.Snapshot()) != 0 {
		t.Error("Snapshot of empty history should be empty")
	}

	_, _ = h.Add(sweepOf(100, Bin{100, -20}))
	h.Clear()
	if h.Len() != 0 {
		t.Error("Clear should remove every entry")
	}

	testCases := []struct {
		name      string
		policy    Policy
		retainMax int
	}{
		{"unknown policy", Policy("latest"), 5},
		{"retain without bound", PolicyRetain, 0},
		{"max hold without bound", PolicyMaxHold, -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewHistory(tc.policy, tc.retainMax); err == nil {
				t.Error("Expected error for invalid parameters")
			}
		})
	}
}

func TestMeasure(t *testing.T) {
	bins := []Bin{{99.9, -80}, {100.0, -20}, {100.1, -40}, {100.2, -60}, {100.3, -10}}

	m, ok := Measure(bins, 100.0, 100.2)
	if !ok {
		t.Fatal("Expected a measurement")
	}
	if m.Count != 3 {
		t.Errorf("Expected 3 bins, got %d", m.Count)
	}
	if m.Max.Freq != 100.0 || m.Max.Power != -20 {
		t.Errorf("Unexpected peak %v", m.Max)
	}
	if m.Min.Freq != 100.2 || m.Min.Power != -60 {
		t.Errorf("Unexpected minimum %v", m.Min)
	}
	if m.GMean != -40 {
		t.Errorf("Expected geometric mean -40 dB, got %f", m.GMean)
	}
	if m.Avg <= m.GMean || m.Avg >= m.Max.Power {
		t.Errorf("Expected the linear average between the geometric mean and the peak, got %f", m.Avg)
	}

	if _, ok = Measure(bins, 200, 300); ok {
		t.Error("Expected no measurement outside the spectrum")
	}

	lo, hi, ok := Extent(bins)
	if !ok || lo != 99.9 || hi != 100.3 {
		t.Errorf("Unexpected extent %f - %f", lo, hi)
	}
}

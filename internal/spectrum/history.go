package spectrum

import (
	"fmt"
	"slices"
	"time"
)

const (
	// PolicyAverage collapses every sweep into a single averaged spectrum.
	PolicyAverage Policy = "average"

	// PolicyRetain keeps up to retainMax sweeps, oldest evicted first.
	PolicyRetain Policy = "retain"

	// PolicyMaxHold keeps up to retainMax sweeps, each holding the per-bin
	// maximum of itself and the sweep before it.
	PolicyMaxHold Policy = "max-hold"

	DefaultRetainMax = 20
)

var validPolicies = map[Policy]struct{}{
	PolicyAverage: {},
	PolicyRetain:  {},
	PolicyMaxHold: {},
}

// Policy selects how finished sweeps are folded into the history.
type Policy string

func (p Policy) String() string {
	return string(p)
}

func (p Policy) IsValid() bool {
	_, ok := validPolicies[p]
	return ok
}

// History is the bounded, timestamp ordered series of sweep spectra of a run.
//
// History is not safe for concurrent use; it is owned by a single aggregating
// goroutine and published to readers as Snapshot copies.
type History struct {
	policy    Policy
	retainMax int

	entries []*Sweep // ascending by timestamp
}

// NewHistory creates a history. retainMax bounds Retain and MaxHold policies.
func NewHistory(policy Policy, retainMax int) (*History, error) {
	if !policy.IsValid() {
		return nil, fmt.Errorf("invalid retention policy: '%s'", policy)
	}
	if policy != PolicyAverage && retainMax <= 0 {
		return nil, fmt.Errorf("invalid history parameters: policy=%s, retainMax=%d", policy, retainMax)
	}

	return &History{
		policy:    policy,
		retainMax: retainMax,
	}, nil
}

func (h *History) Policy() Policy {
	return h.policy
}

// Add folds a finished sweep into the history according to the policy and
// returns the timestamps evicted to honor the bound.
func (h *History) Add(sweep *Sweep) ([]time.Time, error) {
	if sweep == nil {
		return nil, fmt.Errorf("cannot add nil sweep")
	}

	switch h.policy {
	case PolicyAverage:
		h.average(sweep)
		return nil, nil

	case PolicyMaxHold:
		held := sweep.Flatten()
		if latest := h.Latest(); latest != nil {
			for key, acc := range latest.bins {
				if cur, ok := held.bins[key]; ok {
					cur.sum = max(cur.sum, acc.mean())
				}
			}
		}
		h.insert(held)

	default:
		h.insert(sweep.Flatten())
	}

	return h.evict(), nil
}

// average folds sweep into the oldest entry; each sweep contributes one
// sample per bin to the running mean.
func (h *History) average(sweep *Sweep) {
	if len(h.entries) == 0 {
		h.entries = append(h.entries, sweep.Flatten())
		return
	}

	target := h.entries[0]
	for _, b := range sweep.Bins() {
		target.Add(b.Freq, b.Power)
	}
	h.entries = h.entries[:1]
}

func (h *History) insert(sweep *Sweep) {
	i, found := slices.BinarySearchFunc(h.entries, sweep.Timestamp, func(e *Sweep, t time.Time) int {
		return e.Timestamp.Compare(t)
	})
	if found {
		// same wall-clock second, fold into the existing entry
		existing := h.entries[i]
		for _, b := range sweep.Bins() {
			existing.Add(b.Freq, b.Power)
		}
		return
	}

	h.entries = slices.Insert(h.entries, i, sweep)
}

func (h *History) evict() []time.Time {
	if len(h.entries) <= h.retainMax {
		return nil
	}

	count := len(h.entries) - h.retainMax
	evicted := make([]time.Time, count)
	for i, e := range h.entries[:count] {
		evicted[i] = e.Timestamp
	}

	h.entries = slices.Delete(h.entries, 0, count)
	return evicted
}

// Len returns the number of retained spectra.
func (h *History) Len() int {
	return len(h.entries)
}

// Timestamps returns the retained timestamps in ascending order.
func (h *History) Timestamps() []time.Time {
	ts := make([]time.Time, len(h.entries))
	for i, e := range h.entries {
		ts[i] = e.Timestamp
	}
	return ts
}

// Latest returns the most recent entry, or nil when empty.
func (h *History) Latest() *Sweep {
	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[len(h.entries)-1]
}

// Clear removes every entry.
func (h *History) Clear() {
	h.entries = nil
}

// Snapshot returns a copy of the history safe to hand to other goroutines.
func (h *History) Snapshot() []Spectrum {
	snapshot := make([]Spectrum, len(h.entries))
	for i, e := range h.entries {
		snapshot[i] = e.Spectrum()
	}
	return snapshot
}

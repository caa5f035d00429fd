package scan

import (
	"log/slog"
	"time"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

type message interface {
	sweepNumber() int
}

type sweepStarted struct {
	sweep     int
	timestamp time.Time
	steps     int
}

type fragmentReady struct {
	sweep    int
	fragment *spectrum.Fragment
}

// sweepEnded tells the aggregator how many windows were captured for the
// sweep. A cancelled sweep is kept with the fragments merged so far; a sweep
// ended by an error is discarded.
type sweepEnded struct {
	sweep     int
	windows   int
	complete  bool
	cancelled bool
}

func (m sweepStarted) sweepNumber() int  { return m.sweep }
func (m fragmentReady) sweepNumber() int { return m.sweep }
func (m sweepEnded) sweepNumber() int    { return m.sweep }

type pendingSweep struct {
	sweep   *spectrum.Sweep
	steps   int
	merged  int
	windows int
	ended   bool
	partial bool
}

func (p *pendingSweep) isDone() bool {
	return p.ended && p.merged == p.windows
}

// aggregator is the only writer of the history. It merges fragments into
// their sweeps and folds finished sweeps into the history in sweep order.
type aggregator struct {
	scanner *Scanner
	history *spectrum.History
	events  chan<- Event

	pending map[int]*pendingSweep
	next    int // next sweep to fold into the history
}

func newAggregator(s *Scanner, history *spectrum.History, events chan<- Event) *aggregator {
	return &aggregator{
		scanner: s,
		history: history,
		events:  events,
		pending: make(map[int]*pendingSweep),
		next:    1,
	}
}

func (a *aggregator) run(messages <-chan message) {
	for msg := range messages {
		switch m := msg.(type) {
		case sweepStarted:
			a.pending[m.sweep] = &pendingSweep{
				sweep: spectrum.NewSweep(m.timestamp),
				steps: m.steps,
			}

		case fragmentReady:
			p, ok := a.pending[m.sweep]
			if !ok {
				continue // sweep was discarded
			}
			a.merge(m.sweep, p, m.fragment)

		case sweepEnded:
			p, ok := a.pending[m.sweep]
			if !ok {
				continue
			}
			if !m.complete && (!m.cancelled || m.windows == 0) {
				a.scanner.logger.Debug("discarding incomplete sweep",
					slog.Int("sweep", m.sweep),
					slog.Int("windows", m.windows))
				delete(a.pending, m.sweep)
				continue
			}
			p.ended = true
			p.windows = m.windows
			p.partial = !m.complete
		}

		a.fold()
	}
}

func (a *aggregator) merge(n int, p *pendingSweep, f *spectrum.Fragment) {
	_, alerts := a.scanner.merger.Merge(p.sweep, f)
	p.merged++

	ts := p.sweep.Timestamp
	remaining := p.steps - p.merged

	a.emit(Event{Type: EventFragmentReady, Sweep: n, Timestamp: ts, Freq: f.CenterFreq})
	a.emit(Event{Type: EventSweepProgressed, Sweep: n, Timestamp: ts, Steps: remaining})

	if len(alerts) > 0 {
		strongest := alerts[0]
		for _, b := range alerts[1:] {
			if b.Power > strongest.Power {
				strongest = b
			}
		}
		a.emit(Event{Type: EventLevel, Sweep: n, Timestamp: ts, Freq: strongest.Freq, Power: strongest.Power})
	}

	if n == a.scanner.Status().Sweep {
		a.scanner.setStatus(func(st *Status) { st.Remaining = remaining })
	}
}

// fold moves finished sweeps into the history, oldest first.
func (a *aggregator) fold() {
	for {
		p, ok := a.pending[a.next]
		if !ok || !p.isDone() {
			return
		}
		delete(a.pending, a.next)

		n := a.next
		a.next++

		if p.sweep.Len() == 0 {
			a.scanner.logger.Debug("discarding empty sweep", slog.Int("sweep", n))
			continue
		}

		evicted, err := a.history.Add(p.sweep)
		if err != nil {
			a.scanner.logger.Error(err.Error())
			continue
		}
		for _, ts := range evicted {
			a.scanner.logger.Debug("spectrum evicted", slog.Time("timestamp", ts))
		}

		snapshot := a.history.Snapshot()
		a.scanner.history.Store(&snapshot)
		if !p.partial {
			a.scanner.setStatus(func(st *Status) { st.Completed++ })
		}

		spec := p.sweep.Spectrum()
		a.scanner.logger.Info("sweep complete",
			slog.Int("sweep", n),
			slog.Time("timestamp", spec.Timestamp),
			slog.Int("bins", len(spec.Bins)),
			slog.Bool("partial", p.partial))
		a.emit(Event{Type: EventSweepComplete, Sweep: n, Timestamp: spec.Timestamp, Spectrum: &spec, Partial: p.partial})
	}
}

func (a *aggregator) emit(e Event) {
	a.scanner.emit(a.events, e)
}

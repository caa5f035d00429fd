package scan

import (
	"fmt"
	"time"

	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

const (
	EventStarting EventType = iota
	EventInfo
	EventStepCount
	EventWindowCaptured
	EventFragmentReady
	EventSweepProgressed
	EventSweepComplete
	EventLevel
	EventDelay
	EventError
	EventCancelled
	EventFinished
)

var eventNames = map[EventType]string{
	EventStarting:        "starting",
	EventInfo:            "info",
	EventStepCount:       "step-count",
	EventWindowCaptured:  "window-captured",
	EventFragmentReady:   "fragment-ready",
	EventSweepProgressed: "sweep-progressed",
	EventSweepComplete:   "sweep-complete",
	EventLevel:           "level",
	EventDelay:           "delay",
	EventError:           "error",
	EventCancelled:       "cancelled",
	EventFinished:        "finished",
}

// EventType identifies a scan lifecycle event.
type EventType int

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(t))
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// IsTerminal reports whether no further events follow in the run.
func (t EventType) IsTerminal() bool {
	return t == EventError || t == EventCancelled || t == EventFinished
}

// Event is emitted by a scanner while it runs. Only the fields relevant to
// the event type are set. A run ends with exactly one terminal event.
type Event struct {
	Type EventType `json:"type"`

	Sweep     int       `json:"sweep,omitempty"` // 1-based sweep number
	Timestamp time.Time `json:"timestamp"`

	// Steps is the step total of StepCount and the number of steps still to
	// be merged for SweepProgressed.
	Steps int `json:"steps,omitempty"`

	Freq  float64 `json:"freq,omitempty"`  // Hz for windows and fragments, MHz for levels
	Power float64 `json:"power,omitempty"` // dB

	Delay    time.Duration      `json:"delay,omitempty"`
	Tuner    sdr.TunerType      `json:"tuner,omitempty"`
	Spectrum *spectrum.Spectrum `json:"spectrum,omitempty"`
	Partial  bool               `json:"partial,omitempty"` // sweep cut short by cancellation

	Err     error  `json:"-"`
	Message string `json:"message,omitempty"`
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/rtlsdr-scanner/internal/publish"
	"github.com/roman-kulish/rtlsdr-scanner/internal/scan"
	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
	"github.com/roman-kulish/rtlsdr-scanner/internal/storage"
	"github.com/roman-kulish/rtlsdr-scanner/internal/telemetry"
)

const eventBuffer = 64

// Publisher forwards scan results to a message broker.
type Publisher interface {
	PublishSweep(ctx context.Context, msg *publish.SweepMessage) error
	PublishLevel(ctx context.Context, msg *publish.LevelMessage) error
}

// Broadcaster forwards raw scan events to live clients.
type Broadcaster interface {
	Broadcast(e scan.Event)
}

// WithStore sets the store finished sweeps are persisted to.
func WithStore(store storage.Store) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithTelemetry sets the telemetry provider to use for tagging sweeps with
// the station position
func WithTelemetry(provider telemetry.Provider) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.telemetry = provider
	}
}

func WithPublisher(publisher Publisher) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

func WithBroadcaster(broadcaster Broadcaster) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.broadcaster = broadcaster
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(runID string) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.runID = runID
	}
}

// Orchestrator drives a scan run and routes its events: finished sweeps are
// tagged with telemetry, stored and published, and every event is broadcast
// to live clients.
type Orchestrator struct {
	scanner *scan.Scanner
	runID   string

	logger      *slog.Logger
	store       storage.Store
	telemetry   telemetry.Provider
	publisher   Publisher
	broadcaster Broadcaster

	sessionID int64
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(scanner *scan.Scanner, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		scanner: scanner,
		runID:   uuid.NewString(),
		logger:  logger,
	}

	for _, option := range options {
		option(&o)
	}

	o.logger = o.logger.With(slog.String("runID", o.runID))

	return &o
}

func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run starts the scan and handles its events until it ends. A cancelled scan
// is not an error.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.store != nil {
		if err := o.createSession(ctx); err != nil {
			return err
		}
	}

	events := make(chan scan.Event, eventBuffer)
	done, err := o.scanner.Start(ctx, events)
	if err != nil {
		return fmt.Errorf("starting scan: %w", err)
	}

	// results of a sweep finished just before cancellation are still stored
	handleCtx := context.WithoutCancel(ctx)

	for {
		e := <-events
		o.handle(handleCtx, &e)

		if e.Type.IsTerminal() {
			break
		}
	}

	return <-done
}

func (o *Orchestrator) createSession(ctx context.Context) error {
	device := o.scanner.Device()

	config := struct {
		Device  sdr.DeviceConfig   `json:"device"`
		Session scan.SessionConfig `json:"session"`
	}{device, o.scanner.Session()}

	session := spectrum.ScanSession{
		RunID:      o.runID,
		StartTime:  time.Now().UTC(),
		DeviceType: device.Type.String(),
		DeviceID:   device.Name,
	}

	id, err := o.store.CreateSession(ctx, &session, config)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	o.sessionID = id
	o.logger.Info("session created", slog.Int64("sessionID", id))
	return nil
}

func (o *Orchestrator) handle(ctx context.Context, e *scan.Event) {
	if o.broadcaster != nil {
		o.broadcaster.Broadcast(*e)
	}

	switch e.Type {
	case scan.EventInfo:
		o.logger.Info("device ready", slog.String("tuner", e.Tuner.String()))

		if o.store != nil {
			if err := o.store.SetSessionTuner(ctx, o.sessionID, e.Tuner.String()); err != nil {
				o.logger.Error(fmt.Sprintf("recording tuner: %s", err))
			}
		}

	case scan.EventStepCount:
		o.logger.Debug("sweep started", slog.Int("sweep", e.Sweep), slog.Int("steps", e.Steps))

	case scan.EventSweepComplete:
		if err := o.handleSweep(ctx, e); err != nil {
			o.logger.Error(err.Error(), slog.Int("sweep", e.Sweep))
		}

	case scan.EventLevel:
		o.logger.Warn("level exceeded",
			slog.String("freq", humanize.SIWithDigits(e.Freq*1e6, 6, "Hz")),
			slog.Float64("power", e.Power))

		if o.publisher != nil {
			msg := publish.LevelMessage{
				RunID:     o.runID,
				Device:    o.scanner.Device().Name,
				Timestamp: e.Timestamp,
				Freq:      e.Freq,
				Power:     e.Power,
			}
			if err := o.publisher.PublishLevel(ctx, &msg); err != nil {
				o.logger.Error(err.Error())
			}
		}

	case scan.EventDelay:
		o.logger.Info("waiting for the next sweep", slog.Duration("delay", e.Delay))

	case scan.EventError:
		o.logger.Error(fmt.Sprintf("scan failed: %s", e.Message))

	case scan.EventCancelled:
		o.logger.Info("scan cancelled")

	case scan.EventFinished:
		o.logger.Info("scan finished", slog.Int("sweeps", o.scanner.Status().Completed))
	}
}

func (o *Orchestrator) handleSweep(ctx context.Context, e *scan.Event) error {
	if e.Spectrum == nil {
		return nil
	}
	s := e.Spectrum

	lo, hi, ok := spectrum.Extent(s.Bins)
	if !ok {
		return nil
	}
	m, _ := spectrum.Measure(s.Bins, lo, hi)

	o.logger.Info("sweep complete",
		slog.Int("sweep", e.Sweep),
		slog.Int("bins", m.Count),
		slog.String("peak", humanize.SIWithDigits(m.Max.Freq*1e6, 6, "Hz")),
		slog.String("peakPower", fmt.Sprintf("%0.1f dB", m.Max.Power)),
		slog.String("avg", fmt.Sprintf("%0.1f dB", m.Avg)))

	var location *spectrum.Location
	if o.telemetry != nil {
		if loc, ok := o.telemetry.Get().Location(s.Timestamp); ok {
			location = &loc
		}
	}

	if o.store != nil {
		if _, err := o.store.StoreSweep(ctx, o.sessionID, s); err != nil {
			return fmt.Errorf("storing sweep: %w", err)
		}
		if location != nil {
			if _, err := o.store.StoreLocation(ctx, o.sessionID, location); err != nil {
				return fmt.Errorf("storing location: %w", err)
			}
		}
	}

	if o.publisher != nil {
		msg := publish.SweepMessage{
			RunID:       o.runID,
			Device:      o.scanner.Device().Name,
			Sweep:       e.Sweep,
			Timestamp:   s.Timestamp,
			Measurement: m,
			Location:    location,
			Bins:        s.Bins,
		}
		if err := o.publisher.PublishSweep(ctx, &msg); err != nil {
			return fmt.Errorf("publishing sweep: %w", err)
		}
	}

	return nil
}

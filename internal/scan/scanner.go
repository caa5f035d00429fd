package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/rtlsdr-scanner/internal/psd"
	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

// ErrRunning is returned by Start while a run is in progress.
var ErrRunning = errors.New("scanner is already running")

// WithLogger sets the logger for the scanner
func WithLogger(logger *slog.Logger) func(s *Scanner) {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithClock replaces time.Now as the source of sweep timestamps.
func WithClock(now func() time.Time) func(s *Scanner) {
	return func(s *Scanner) {
		s.now = now
	}
}

// Status is a point in time view of a run.
type Status struct {
	Running   bool      `json:"running"`
	Sweep     int       `json:"sweep"`     // current sweep number
	Steps     int       `json:"steps"`     // steps per sweep
	Remaining int       `json:"remaining"` // steps of the current sweep not merged yet
	Completed int       `json:"completed"` // finished sweeps
	Timestamp time.Time `json:"timestamp"` // of the current sweep
}

// Scanner sweeps a frequency range with a single tuner. Capture happens
// sequentially on the run goroutine, spectral estimation on a bounded pool of
// workers, and a single aggregator owns the spectrum history.
type Scanner struct {
	session SessionConfig
	device  sdr.DeviceConfig
	open    sdr.Opener

	estimator   *psd.Estimator
	merger      *spectrum.Merger
	plan        Plan
	sampleCount int
	workers     int

	now    func() time.Time
	logger *slog.Logger

	isRunning atomic.Bool
	stopAtEnd atomic.Bool
	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	history atomic.Pointer[[]spectrum.Spectrum]
	statMu  sync.Mutex
	status  Status
}

// New creates a scanner. open is called once at the beginning of every run.
func New(session SessionConfig, device sdr.DeviceConfig, open sdr.Opener, options ...func(s *Scanner)) (*Scanner, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if err := device.Validate(); err != nil {
		return nil, err
	}
	if open == nil {
		return nil, errors.New("scan: no device opener")
	}
	if _, err := spectrum.NewHistory(session.Policy(), session.RetainMax); err != nil {
		return nil, err
	}

	estimator, err := psd.New(session.EstimatorConfig(device))
	if err != nil {
		return nil, err
	}

	merger := spectrum.NewMerger(session.Start.Hz(), session.Stop.Hz(), device.BandOffset.Hz(), sdr.Bandwidth)
	if session.AlertLevel != nil {
		merger.WithAlert(*session.AlertLevel)
	}

	workers := session.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	s := Scanner{
		session:     session,
		device:      device,
		open:        open,
		estimator:   estimator,
		merger:      merger,
		plan:        NewPlan(session.Start.Hz(), session.Stop.Hz(), device.BandOffset.Hz()),
		sampleCount: session.SampleCount(),
		workers:     workers,
		now:         time.Now,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	s.logger = s.logger.With(
		slog.String("device", device.Type.String()),
		slog.String("deviceID", device.Name),
	)
	s.history.Store(&[]spectrum.Spectrum{})

	return &s, nil
}

// Plan returns the frequency plan of every sweep.
func (s *Scanner) Plan() Plan {
	return s.plan
}

// SampleCount returns the number of samples captured per step.
func (s *Scanner) SampleCount() int {
	return s.sampleCount
}

// Session returns the run configuration.
func (s *Scanner) Session() SessionConfig {
	return s.session
}

// Device returns the device configuration.
func (s *Scanner) Device() sdr.DeviceConfig {
	return s.device
}

// Start opens the device and begins sweeping in the background. Events are
// delivered on events, which must be drained until a terminal event arrives;
// a nil channel discards them.
//
// The returned channel receives the error that ended the run, if any, and is
// closed once the device is released. A cancelled run ends without error.
func (s *Scanner) Start(ctx context.Context, events chan<- Event) (<-chan error, error) {
	if !s.isRunning.CompareAndSwap(false, true) {
		return nil, ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.stopAtEnd.Store(false)
	s.history.Store(&[]spectrum.Spectrum{})
	s.setStatus(func(st *Status) { *st = Status{Running: true, Steps: s.plan.Steps} })

	done := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer s.isRunning.Store(false)
		defer s.setStatus(func(st *Status) { st.Running = false })
		defer cancel()

		if err := s.run(ctx, events); err != nil {
			done <- err
		}
	}()

	return done, nil
}

// Cancel requests the run to stop at the next step boundary and returns
// immediately. A capture in progress is completed and its window estimated;
// the sweep it belongs to enters the history as a partial sweep.
func (s *Scanner) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
}

// StopAtEnd requests the run to stop once the current sweep is complete.
func (s *Scanner) StopAtEnd() {
	s.stopAtEnd.Store(true)
}

// Wait blocks until the current run, if any, has ended.
func (s *Scanner) Wait() {
	s.wg.Wait()
}

// IsRunning returns true if a run is in progress
func (s *Scanner) IsRunning() bool {
	return s.isRunning.Load()
}

// History returns the latest published copy of the spectrum history.
func (s *Scanner) History() []spectrum.Spectrum {
	return *s.history.Load()
}

func (s *Scanner) Status() Status {
	s.statMu.Lock()
	defer s.statMu.Unlock()
	return s.status
}

func (s *Scanner) setStatus(fn func(st *Status)) {
	s.statMu.Lock()
	fn(&s.status)
	s.statMu.Unlock()
}

func (s *Scanner) run(ctx context.Context, events chan<- Event) error {
	s.emit(events, Event{Type: EventStarting})
	s.logger.Info("starting scan",
		slog.String("start", s.session.Start.String()),
		slog.String("stop", s.session.Stop.String()),
		slog.Int("steps", s.plan.Steps),
		slog.Int("samples", s.sampleCount),
		slog.String("mode", s.session.Mode.String()))

	tuner, err := s.open(ctx)
	if err != nil {
		return s.fail(events, asDeviceError("open", err))
	}
	defer func() {
		if err := tuner.Close(); err != nil {
			s.logger.Warn(fmt.Sprintf("error closing device: %s", err.Error()))
		}
	}()

	setup := []struct {
		msg string
		fn  func() error
	}{
		{"set sample rate", func() error { return tuner.SetSampleRate(sdr.SampleRate) }},
		{"set gain", func() error { return tuner.SetGain(s.device.Gain) }},
	}
	for _, step := range setup {
		if err = step.fn(); err != nil {
			return s.fail(events, asDeviceError(step.msg, err))
		}
	}

	history, err := spectrum.NewHistory(s.session.Policy(), s.session.RetainMax)
	if err != nil {
		return s.fail(events, err)
	}

	// estimates complete even when the run is cancelled
	pool, poolCtx := errgroup.WithContext(context.Background())
	pool.SetLimit(s.workers)

	messages := make(chan message, s.workers)
	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		newAggregator(s, history, events).run(messages)
	}()

	cancelled, loopErr := s.sweep(ctx, poolCtx, tuner, pool, messages, events)
	poolErr := pool.Wait()
	close(messages)
	<-aggregated

	switch {
	case loopErr != nil:
		return s.fail(events, loopErr)
	case poolErr != nil:
		return s.fail(events, poolErr)
	case cancelled:
		s.logger.Info("scan cancelled")
		s.emit(events, Event{Type: EventCancelled})
		return nil
	}

	s.logger.Info("scan finished", slog.Int("sweeps", s.Status().Completed))
	s.emit(events, Event{Type: EventFinished})
	return nil
}

// sweep runs the sweep loop on the calling goroutine, handing every captured
// window to the estimator pool.
func (s *Scanner) sweep(ctx, poolCtx context.Context, tuner sdr.Tuner, pool *errgroup.Group,
	messages chan<- message, events chan<- Event) (cancelled bool, err error) {

	var infoSent bool

	for n := 1; ; n++ {
		ts := s.sweepTimestamp()
		steps := s.plan.Steps

		s.setStatus(func(st *Status) {
			st.Sweep, st.Remaining, st.Timestamp = n, steps, ts
		})
		s.emit(events, Event{Type: EventStepCount, Sweep: n, Timestamp: ts, Steps: steps})
		messages <- sweepStarted{sweep: n, timestamp: ts, steps: steps}

		windows := 0
		for i := 0; i < steps; i++ {
			if ctx.Err() != nil {
				messages <- sweepEnded{sweep: n, windows: windows, cancelled: true}
				return true, nil
			}
			if poolCtx.Err() != nil {
				messages <- sweepEnded{sweep: n, windows: windows}
				return false, nil
			}

			w, err := s.capture(tuner, s.plan.Freq(i), ts)
			if err != nil {
				messages <- sweepEnded{sweep: n, windows: windows}
				return false, err
			}

			if !infoSent {
				infoSent = true
				s.emit(events, Event{Type: EventInfo, Tuner: tuner.TunerType()})
			}
			s.emit(events, Event{Type: EventWindowCaptured, Sweep: n, Timestamp: ts, Freq: w.CenterFreq})
			windows++

			pool.Go(func() error {
				f, err := s.estimator.Estimate(&w)
				if err != nil {
					return err
				}
				messages <- fragmentReady{sweep: n, fragment: f}
				return nil
			})
		}
		messages <- sweepEnded{sweep: n, windows: windows, complete: true}

		if s.isLastSweep(n) {
			return false, nil
		}

		if delay := s.session.Delay.Std(); delay > 0 {
			s.emit(events, Event{Type: EventDelay, Sweep: n, Delay: delay})

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return true, nil
			}
		}
	}
}

func (s *Scanner) capture(tuner sdr.Tuner, freq float64, ts time.Time) (sdr.CaptureWindow, error) {
	if err := tuner.SetCenterFreq(freq + s.device.LOOffset.Hz()); err != nil {
		return sdr.CaptureWindow{}, asDeviceError("tune", err)
	}

	samples, err := tuner.ReadSamples(s.sampleCount)
	if err != nil {
		return sdr.CaptureWindow{}, asDeviceError("read", err)
	}
	if len(samples) == 0 {
		return sdr.CaptureWindow{}, &sdr.EmptyCaptureError{Freq: freq}
	}

	s.logger.Debug("window captured",
		slog.String("frequency", humanize.SIWithDigits(freq, 3, "Hz")),
		slog.Int("samples", len(samples)))

	return sdr.CaptureWindow{
		Timestamp:  ts,
		CenterFreq: freq,
		Samples:    samples,
	}, nil
}

func (s *Scanner) isLastSweep(n int) bool {
	if s.stopAtEnd.Load() {
		return true
	}

	switch s.session.Mode {
	case ModeSingle:
		return n >= s.session.Sweeps
	case ModeMaxHold:
		return n >= s.session.RetainMax
	default:
		return s.session.Sweeps > 0 && n >= s.session.Sweeps
	}
}

// sweepTimestamp is the start of the sweep truncated to whole seconds.
func (s *Scanner) sweepTimestamp() time.Time {
	return time.Unix(s.now().Unix(), 0)
}

func (s *Scanner) fail(events chan<- Event, err error) error {
	s.logger.Error(err.Error())
	s.emit(events, Event{Type: EventError, Err: err, Message: err.Error()})
	return err
}

func (s *Scanner) emit(events chan<- Event, e Event) {
	if events != nil {
		events <- e
	}
}

// asDeviceError keeps typed device and transport errors and wraps anything
// else into a DeviceError.
func asDeviceError(op string, err error) error {
	var deviceErr *sdr.DeviceError
	var transportErr *sdr.TransportError
	if errors.As(err, &deviceErr) || errors.As(err, &transportErr) {
		return err
	}
	return sdr.NewDeviceError(op, err)
}

package scan

import (
	"context"
	"fmt"

	"github.com/roman-kulish/rtlsdr-scanner/internal/calibration"
	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

// Calibrate runs a single uncalibrated sweep over the megahertz band around
// the reference frequency and measures the tuner error against it. Events
// are delivered as for Start.
func Calibrate(ctx context.Context, session SessionConfig, device sdr.DeviceConfig, open sdr.Opener,
	reference sdr.Frequency, events chan<- Event, options ...func(s *Scanner)) (calibration.Result, error) {

	start, stop := calibration.Range(reference.Hz() / 1e6)

	session.Start = sdr.Frequency(start)
	session.Stop = sdr.Frequency(stop)
	session.Mode = ModeSingle
	session.Sweeps = 1
	session.Delay = 0
	session.Retention = spectrum.PolicyRetain
	session.AlertLevel = nil
	if session.RetainMax <= 0 {
		session.RetainMax = 1
	}

	device.CalibrationPPM = 0

	s, err := New(session, device, open, options...)
	if err != nil {
		return calibration.Result{}, err
	}

	done, err := s.Start(ctx, events)
	if err != nil {
		return calibration.Result{}, err
	}
	if err = <-done; err != nil {
		return calibration.Result{}, err
	}

	history := s.History()
	if len(history) == 0 {
		if err = ctx.Err(); err != nil {
			return calibration.Result{}, err
		}
		return calibration.Result{}, fmt.Errorf("calibration: %w", calibration.ErrNoSignal)
	}

	return calibration.PPM(history[len(history)-1].Bins, reference.Hz()/1e6)
}

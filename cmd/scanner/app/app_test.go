package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/rtlsdr-scanner/internal/publish"
	"github.com/roman-kulish/rtlsdr-scanner/internal/scan"
	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
	"github.com/roman-kulish/rtlsdr-scanner/internal/storage"
	"github.com/roman-kulish/rtlsdr-scanner/internal/telemetry"
)

var nilLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// silentTuner captures nothing but zeros.
type silentTuner struct{}

func (silentTuner) SetSampleRate(float64) error { return nil }

func (silentTuner) SetCenterFreq(float64) error { return nil }

func (silentTuner) SetGain(*float64) error { return nil }

func (silentTuner) ReadSamples(n int) ([]complex128, error) { return make([]complex128, n), nil }

func (silentTuner) TunerType() sdr.TunerType { return sdr.TunerR820T }

func (silentTuner) Close() error { return nil }

type fakePublisher struct {
	mu     sync.Mutex
	sweeps []*publish.SweepMessage
	levels int
}

func (f *fakePublisher) PublishSweep(_ context.Context, msg *publish.SweepMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps = append(f.sweeps, msg)
	return nil
}

func (f *fakePublisher) PublishLevel(context.Context, *publish.LevelMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels++
	return nil
}

type fakeBroadcaster struct {
	events []scan.EventType
}

func (f *fakeBroadcaster) Broadcast(e scan.Event) {
	f.events = append(f.events, e.Type)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
settings:
  logLevel: debug
device:
  name: roof
  type: rtl-tcp
  host: 192.168.1.10
  port: 1234
  gain: 29.7
  calibration: -1.5
scan:
  start: 430MHz
  stop: 440MHz
  dwell: 0.05
  fftBins: 2048
  window: blackman
  mode: continuous
  sweeps: 0
  delay: 10s
telemetry:
  type: static
  static:
    latitude: -33.86
    longitude: 151.2
mqtt:
  enabled: true
  host: broker.local
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if err = config.Validate(); err != nil {
		t.Fatalf("validating config: %v", err)
	}

	if config.Settings.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug log level, got %s", config.Settings.LogLevel)
	}
	if config.Device.IsLocal() || config.Device.Address() != "192.168.1.10:1234" {
		t.Errorf("unexpected device %+v", config.Device)
	}
	if config.Device.Gain == nil || *config.Device.Gain != 29.7 {
		t.Errorf("expected 29.7 dB gain, got %v", config.Device.Gain)
	}
	if config.Scan.Start != 430e6 || config.Scan.Stop != 440e6 {
		t.Errorf("unexpected range %s - %s", config.Scan.Start, config.Scan.Stop)
	}
	if config.Scan.Dwell.Std() != 50*time.Millisecond || config.Scan.Delay.Std() != 10*time.Second {
		t.Errorf("unexpected dwell %s or delay %s", config.Scan.Dwell, config.Scan.Delay)
	}
	if config.Scan.Mode != scan.ModeContinuous || config.Scan.Sweeps != 0 {
		t.Errorf("unexpected mode %s with %d sweeps", config.Scan.Mode, config.Scan.Sweeps)
	}
	if config.Scan.RetainMax != NewConfig().Scan.RetainMax {
		t.Errorf("expected the default retainMax, got %d", config.Scan.RetainMax)
	}
	if config.MQTT.Port != publish.DefaultPort || config.MQTT.TopicPrefix != publish.DefaultTopicPrefix {
		t.Errorf("expected MQTT defaults, got %+v", config.MQTT)
	}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"invalid device", func(c *Config) { c.Device.Type = "hackrf" }},
		{"invalid scan", func(c *Config) { c.Scan.Stop = c.Scan.Start }},
		{"invalid telemetry type", func(c *Config) { c.Telemetry.Type = "imu" }},
		{"invalid static position", func(c *Config) {
			c.Telemetry.Type = TelemetryStatic
			c.Telemetry.Static.Latitude = 91
		}},
		{"invalid gpsd address", func(c *Config) {
			c.Telemetry.Type = TelemetryGPSD
			c.Telemetry.GPSD.Address = "localhost"
		}},
		{"server without address", func(c *Config) {
			c.Server.Enabled = true
			c.Server.Listen = ""
		}},
	}

	if err := NewConfig().Validate(); err != nil {
		t.Fatalf("defaults must be valid: %v", err)
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := NewConfig()
			tc.modify(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestOrchestrator_Run(t *testing.T) {
	session := scan.NewSessionConfig()
	session.Start = 100e6
	session.Stop = 101e6
	session.Dwell = scan.Duration(time.Millisecond)
	session.Mode = scan.ModeContinuous
	session.Sweeps = 2
	session.Workers = 2

	alert := -250.0
	session.AlertLevel = &alert

	device := sdr.NewDeviceConfig()
	device.Name = "test"

	open := func(context.Context) (sdr.Tuner, error) { return silentTuner{}, nil }

	scanner, err := scan.New(session, device, open)
	if err != nil {
		t.Fatalf("creating scanner: %v", err)
	}

	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "scan.sqlite"))
	defer store.Close()

	var publisher fakePublisher
	var broadcaster fakeBroadcaster

	o := NewOrchestrator(scanner, nilLogger,
		WithStore(store),
		WithTelemetry(telemetry.NewStatic(telemetry.StaticConfig{Latitude: 51.5, Longitude: -0.12})),
		WithPublisher(&publisher),
		WithBroadcaster(&broadcaster),
		WithRunID("run-1"))

	if err = o.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(publisher.sweeps) != 2 {
		t.Fatalf("expected 2 published sweeps, got %d", len(publisher.sweeps))
	}
	for _, msg := range publisher.sweeps {
		if msg.RunID != "run-1" || msg.Device != "test" || msg.Location == nil || len(msg.Bins) == 0 {
			t.Errorf("unexpected sweep message %+v", msg)
		}
	}
	if publisher.levels == 0 {
		t.Error("expected level alerts")
	}

	if n := len(broadcaster.events); n == 0 || broadcaster.events[n-1] != scan.EventFinished {
		t.Errorf("expected broadcast events ending with finished, got %v", broadcaster.events)
	}

	ctx := context.Background()
	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("reading sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].RunID != "run-1" || sessions[0].DeviceID != "test" {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
	if sessions[0].Tuner != "R820T" {
		t.Errorf("expected the reported tuner to be recorded, got '%s'", sessions[0].Tuner)
	}

	reader, err := store.ReadSweeps(ctx, sessions[0].ID)
	if err != nil {
		t.Fatalf("reading sweeps: %v", err)
	}
	defer reader.Close()

	if reader.Count() != 2 {
		t.Errorf("expected 2 stored sweeps, got %d", reader.Count())
	}

	var read int
	for reader.Next(ctx) {
		read++
		if reader.Current().Location == nil {
			t.Errorf("sweep %d has no location", reader.Current().ID)
		}
	}
	if err = reader.Error(); err != nil {
		t.Fatalf("iterating sweeps: %v", err)
	}
	if read != 2 {
		t.Errorf("expected to read 2 sweeps, got %d", read)
	}
}

package scan

import (
	"encoding/json"
	"fmt"
	"math"
	"math/bits"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/rtlsdr-scanner/internal/psd"
	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

const (
	// ModeSingle runs a fixed number of sweeps, one by default
	ModeSingle Mode = "single"

	// ModeContinuous sweeps until stopped, or until the sweep count is reached when set
	ModeContinuous Mode = "continuous"

	// ModeMaxHold sweeps until retainMax max-hold spectra are collected
	ModeMaxHold Mode = "max-hold"

	DefaultDwell = 100 * time.Millisecond
)

var validModes = map[Mode]struct{}{
	ModeSingle:     {},
	ModeContinuous: {},
	ModeMaxHold:    {},
}

// Mode selects how many sweeps a run performs.
type Mode string

func (m Mode) String() string {
	return string(m)
}

// Duration is a time.Duration that reads from YAML and JSON as either a Go
// duration string ("100ms", "5s") or a number of seconds.
type Duration time.Duration

func ParseDuration(s string) (Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(secs * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("scan.Duration: failed to parse: %s", err)
	}
	return Duration(d), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseDuration(value.Value)
	if err != nil {
		return err
	}

	*d = v
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v any
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	switch v := v.(type) {
	case float64:
		*d = Duration(v * float64(time.Second))
	case string:
		parsed, err := ParseDuration(v)
		if err != nil {
			return err
		}
		*d = parsed
	default:
		return fmt.Errorf("scan.Duration: unsupported value %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// SessionConfig holds the parameters of a scan run. It is read-only for the
// duration of the run.
type SessionConfig struct {
	Start sdr.Frequency `yaml:"start" json:"start"`
	Stop  sdr.Frequency `yaml:"stop" json:"stop"`

	Dwell   Duration           `yaml:"dwell" json:"dwell"`
	FFTBins int                `yaml:"fftBins" json:"fftBins"`
	Window  psd.WindowFunction `yaml:"window" json:"window"`
	Overlap float64            `yaml:"overlap" json:"overlap"`

	Mode      Mode            `yaml:"mode" json:"mode"`
	Sweeps    int             `yaml:"sweeps" json:"sweeps"` // 0 is unbounded in continuous mode
	Delay     Duration        `yaml:"delay" json:"delay"`   // between sweeps
	Retention spectrum.Policy `yaml:"retention" json:"retention"`
	RetainMax int             `yaml:"retainMax" json:"retainMax"`

	AlertLevel *float64 `yaml:"alertLevel" json:"alertLevel,omitempty"` // dB
	Workers    int      `yaml:"workers" json:"workers"`                 // concurrent estimators
}

// NewSessionConfig returns a configuration sweeping the FM broadcast band
// with defaults applied.
func NewSessionConfig() SessionConfig {
	return SessionConfig{
		Start:     87_000_000,
		Stop:      108_000_000,
		Dwell:     Duration(DefaultDwell),
		FFTBins:   psd.DefaultFFTBins,
		Window:    psd.DefaultWindow,
		Mode:      ModeSingle,
		Sweeps:    1,
		Retention: spectrum.PolicyRetain,
		RetainMax: spectrum.DefaultRetainMax,
		Workers:   runtime.NumCPU(),
	}
}

func (c *SessionConfig) Validate() error {
	if c.Start <= 0 {
		return fmt.Errorf("scan.SessionConfig: start frequency must be positive: %s", c.Start)
	}
	if c.Stop <= c.Start {
		return fmt.Errorf("scan.SessionConfig: stop frequency must be greater than start: %s <= %s", c.Stop, c.Start)
	}
	if c.Dwell <= 0 {
		return fmt.Errorf("scan.SessionConfig: dwell must be positive: %s", c.Dwell)
	}
	if c.Delay < 0 {
		return fmt.Errorf("scan.SessionConfig: delay must not be negative: %s", c.Delay)
	}

	estimator := c.EstimatorConfig(sdr.DeviceConfig{})
	if err := estimator.Validate(); err != nil {
		return fmt.Errorf("scan.SessionConfig: %w", err)
	}

	if _, ok := validModes[c.Mode]; !ok {
		return fmt.Errorf("scan.SessionConfig: invalid mode: '%s'", c.Mode)
	}
	if c.Retention != spectrum.PolicyAverage && c.Retention != spectrum.PolicyRetain {
		return fmt.Errorf("scan.SessionConfig: invalid retention policy: '%s'", c.Retention)
	}
	if c.Sweeps < 0 || (c.Mode == ModeSingle && c.Sweeps == 0) {
		return fmt.Errorf("scan.SessionConfig: invalid sweep count for %s mode: %d", c.Mode, c.Sweeps)
	}
	if c.RetainMax <= 0 && (c.Retention == spectrum.PolicyRetain || c.Mode == ModeMaxHold) {
		return fmt.Errorf("scan.SessionConfig: retainMax must be positive: %d", c.RetainMax)
	}
	if c.Workers < 0 {
		return fmt.Errorf("scan.SessionConfig: workers must not be negative: %d", c.Workers)
	}

	return nil
}

// Policy returns the history policy of the run. Max-hold mode always holds
// maxima regardless of the configured retention.
func (c *SessionConfig) Policy() spectrum.Policy {
	if c.Mode == ModeMaxHold {
		return spectrum.PolicyMaxHold
	}
	return c.Retention
}

// SampleCount returns the number of samples captured per step.
func (c *SessionConfig) SampleCount() int {
	return SampleCount(c.Dwell.Std().Seconds(), sdr.SampleRate)
}

// EstimatorConfig combines the session and device corrections into the
// spectral estimator parameters.
func (c *SessionConfig) EstimatorConfig(device sdr.DeviceConfig) psd.Config {
	return psd.Config{
		FFTBins:        c.FFTBins,
		Overlap:        c.Overlap,
		Window:         c.Window,
		SampleRate:     sdr.SampleRate,
		CalibrationPPM: device.CalibrationPPM,
		LevelOffset:    device.LevelOffset,
	}
}

// SampleCount returns the smallest power of two not below dwell * sampleRate.
func SampleCount(dwell, sampleRate float64) int {
	n := int(math.Ceil(dwell * sampleRate))
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// RealDwell returns the capture time actually spent per step, truncated to
// milliseconds.
func RealDwell(dwell time.Duration) time.Duration {
	n := SampleCount(dwell.Seconds(), sdr.SampleRate)
	real := time.Duration(float64(n) / sdr.SampleRate * float64(time.Second))
	return real.Truncate(time.Millisecond)
}

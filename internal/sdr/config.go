package sdr

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	DeviceLocal  DeviceType = "rtl-sdr"
	DeviceRemote DeviceType = "rtl-tcp"

	DefaultHost = "localhost"
	DefaultPort = 1234
)

var validDeviceTypes = map[DeviceType]struct{}{
	DeviceLocal:  {},
	DeviceRemote: {},
}

// DeviceType selects the capture transport.
type DeviceType string

func (t DeviceType) String() string {
	return string(t)
}

// Frequency is a frequency in Hz. In YAML and JSON it accepts either a bare
// number of Hz or an SI string such as "87.5MHz".
type Frequency float64

func ParseFrequency(s string) (Frequency, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Frequency(v), nil
	}

	v, unit, err := humanize.ParseSI(s)
	if err != nil {
		return 0, fmt.Errorf("sdr.Frequency: failed to parse '%s': %w", s, err)
	}
	if unit != "" && !strings.EqualFold(unit, "hz") {
		return 0, fmt.Errorf("sdr.Frequency: unexpected unit '%s'", unit)
	}
	return Frequency(v), nil
}

func (f *Frequency) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseFrequency(value.Value)
	if err != nil {
		return err
	}

	*f = v
	return nil
}

func (f Frequency) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

func (f *Frequency) UnmarshalJSON(bytes []byte) error {
	var v any
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	switch v := v.(type) {
	case float64:
		*f = Frequency(v)
	case string:
		parsed, err := ParseFrequency(v)
		if err != nil {
			return err
		}
		*f = parsed
	default:
		return fmt.Errorf("sdr.Frequency: unsupported value %v", v)
	}
	return nil
}

func (f Frequency) Hz() float64 {
	return float64(f)
}

func (f Frequency) String() string {
	return humanize.SIWithDigits(float64(f), 6, "Hz")
}

// DeviceConfig describes the capture device and the corrections applied to
// everything captured with it. It is read-only for the duration of a run.
type DeviceConfig struct {
	Name string     `yaml:"name" json:"name"`
	Type DeviceType `yaml:"type" json:"type"`

	// Local device identity
	Index  int    `yaml:"index" json:"index"`
	Serial string `yaml:"serial" json:"serial,omitempty"`

	// Remote server identity
	Host string `yaml:"host" json:"host,omitempty"`
	Port int    `yaml:"port" json:"port,omitempty"`

	Gain           *float64  `yaml:"gain" json:"gain,omitempty"` // dB, automatic when nil
	CalibrationPPM float64   `yaml:"calibration" json:"calibration"`
	LOOffset       Frequency `yaml:"loOffset" json:"loOffset"`
	BandOffset     Frequency `yaml:"bandOffset" json:"bandOffset"`
	LevelOffset    float64   `yaml:"levelOffset" json:"levelOffset"` // dB
}

// NewDeviceConfig returns a local device configuration with defaults applied.
func NewDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Name:       "rtl-sdr",
		Type:       DeviceLocal,
		Host:       DefaultHost,
		Port:       DefaultPort,
		BandOffset: DefaultBandOffset,
	}
}

func (c *DeviceConfig) IsLocal() bool {
	return c.Type == DeviceLocal
}

// Address returns the host:port of a remote device.
func (c *DeviceConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *DeviceConfig) Validate() error {
	if _, ok := validDeviceTypes[c.Type]; !ok {
		return fmt.Errorf("sdr.DeviceConfig: invalid device type: '%s'", c.Type)
	}
	if c.IsLocal() && c.Index < 0 {
		return fmt.Errorf("sdr.DeviceConfig: device index must not be negative: %d", c.Index)
	}
	if !c.IsLocal() {
		if c.Host == "" {
			return fmt.Errorf("sdr.DeviceConfig: host is required for %s", c.Type)
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("sdr.DeviceConfig: invalid port: %d", c.Port)
		}
	}
	if c.BandOffset < 0 || c.BandOffset.Hz() > SampleRate/2-Bandwidth/2 {
		return fmt.Errorf("sdr.DeviceConfig: band offset must be between 0 and %d Hz: %s given",
			SampleRate/2-Bandwidth/2, c.BandOffset)
	}
	if c.Gain != nil && (*c.Gain < -10 || *c.Gain > 60) {
		return fmt.Errorf("sdr.DeviceConfig: gain out of range: %0.1f dB", *c.Gain)
	}
	return nil
}

package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/rtlsdr-scanner/internal/publish"
	"github.com/roman-kulish/rtlsdr-scanner/internal/scan"
	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
	"github.com/roman-kulish/rtlsdr-scanner/internal/server"
	"github.com/roman-kulish/rtlsdr-scanner/internal/telemetry"
)

const (
	TelemetryNone   TelemetryType = ""
	TelemetryStatic TelemetryType = "static"
	TelemetryGPSD   TelemetryType = "gpsd"
)

type TelemetryType string

// Config represents the main application configuration
type Config struct {
	Settings  Settings           `yaml:"settings"`
	Device    sdr.DeviceConfig   `yaml:"device"`
	Scan      scan.SessionConfig `yaml:"scan"`
	Telemetry TelemetryConfig    `yaml:"telemetry"`
	Storage   StorageConfig      `yaml:"storage"`
	MQTT      publish.Config     `yaml:"mqtt"`
	Server    server.Config      `yaml:"server"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
}

// TelemetryConfig selects the position source sweeps are tagged with
type TelemetryConfig struct {
	Type   TelemetryType          `yaml:"type"`
	Static telemetry.StaticConfig `yaml:"static"`
	GPSD   telemetry.GPSDConfig   `yaml:"gpsd"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
}

// NewConfig returns a configuration with defaults applied.
func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Device:   sdr.NewDeviceConfig(),
		Scan:     scan.NewSessionConfig(),
		Telemetry: TelemetryConfig{
			GPSD: telemetry.GPSDConfig{Address: telemetry.DefaultGPSDAddress},
		},
		Storage: StorageConfig{DataDirectory: storageDir},
		MQTT: publish.Config{
			Port:        publish.DefaultPort,
			TopicPrefix: publish.DefaultTopicPrefix,
		},
		Server: server.Config{Listen: server.DefaultListen},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults. An empty
// path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	config := NewConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	var errs []error

	validators := []interface{ Validate() error }{&c.Device, &c.Scan, &c.MQTT, &c.Server}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Telemetry.Type {
	case TelemetryNone:
	case TelemetryStatic:
		errs = append(errs, c.Telemetry.Static.Validate())
	case TelemetryGPSD:
		errs = append(errs, c.Telemetry.GPSD.Validate())
	default:
		errs = append(errs, fmt.Errorf("app.TelemetryConfig: invalid telemetry type: '%s'", c.Telemetry.Type))
	}

	return errors.Join(errs...)
}

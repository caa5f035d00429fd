package telemetry

import (
	"fmt"
	"time"
)

// StaticConfig is a fixed station position.
type StaticConfig struct {
	Latitude  float64  `yaml:"latitude"`
	Longitude float64  `yaml:"longitude"`
	Altitude  *float64 `yaml:"altitude"`
}

func (c *StaticConfig) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("telemetry.StaticConfig: latitude out of range: %f", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("telemetry.StaticConfig: longitude out of range: %f", c.Longitude)
	}
	return nil
}

// Static always reports the configured position, timestamped at the time of
// the call.
type Static struct {
	config StaticConfig
	now    func() time.Time
}

func NewStatic(config StaticConfig) *Static {
	return &Static{config: config, now: time.Now}
}

func (s *Static) Get() *Telemetry {
	lat, lon := s.config.Latitude, s.config.Longitude
	return &Telemetry{
		Timestamp: s.now(),
		Latitude:  &lat,
		Longitude: &lon,
		Altitude:  s.config.Altitude,
	}
}

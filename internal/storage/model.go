package storage

import (
	"database/sql"
	"time"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

type sessionData struct {
	ID         int64
	RunID      string
	StartTime  time.Time
	DeviceType string
	DeviceID   string
	Tuner      sql.NullString
	Config     sql.NullString
}

func (d *sessionData) toSession() *spectrum.ScanSession {
	s := spectrum.ScanSession{
		ID:         d.ID,
		RunID:      d.RunID,
		StartTime:  d.StartTime,
		DeviceType: d.DeviceType,
		DeviceID:   d.DeviceID,
		Tuner:      d.Tuner.String,
	}
	if d.Config.Valid {
		s.Config = &d.Config.String
	}
	return &s
}

type locationData struct {
	FixTime   buggySqliteDatetime
	Latitude  sql.NullFloat64
	Longitude sql.NullFloat64
	Altitude  sql.NullFloat64
}

// binData is a single row of the sweep reader query.
type binData struct {
	SweepID   int64
	Timestamp time.Time
	Frequency float64
	Power     float64
	locationData
}

// SweepRecord is a stored sweep with the location it was tagged with, if any.
type SweepRecord struct {
	ID       int64              `json:"id"`
	Spectrum spectrum.Spectrum  `json:"spectrum"`
	Location *spectrum.Location `json:"location,omitempty"`
}

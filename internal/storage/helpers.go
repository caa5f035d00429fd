package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && cErr != sql.ErrTxDone {
		*err = cErr
	}
}

// sqliteDatetimeLayouts are the layouts go-sqlite3 writes time.Time values in.
var sqliteDatetimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// buggySqliteDatetime scans timestamps returned by aggregates such as MIN and
// MAX, which go-sqlite3 hands back as strings rather than time.Time.
type buggySqliteDatetime struct {
	Datetime time.Time
	Valid    bool
}

func (d *buggySqliteDatetime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		d.Datetime, d.Valid = time.Time{}, false
		return nil
	case time.Time:
		d.Datetime, d.Valid = v, true
		return nil
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("unsupported datetime value %T", value)
	}
}

func (d *buggySqliteDatetime) parse(s string) error {
	for _, layout := range sqliteDatetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Datetime, d.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("unsupported datetime format: '%s'", s)
}

func toNullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toLocation(ts time.Time, row *locationData) *spectrum.Location {
	if !row.Latitude.Valid || !row.Longitude.Valid {
		return nil
	}

	loc := spectrum.Location{
		Timestamp: ts,
		FixTime:   row.FixTime.Datetime,
		Latitude:  row.Latitude.Float64,
		Longitude: row.Longitude.Float64,
	}
	if row.Altitude.Valid {
		alt := row.Altitude.Float64
		loc.Altitude = &alt
	}
	return &loc
}

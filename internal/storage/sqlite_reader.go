package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

// ErrNoData indicates either that no sweep data exists for the given parameters,
// or that all available data has been read from the sweep reader.
var ErrNoData = errors.New("no data available")

// SweepReader provides an iterator-based interface for reading stored sweeps
// with optional time and frequency filtering.
type SweepReader interface {
	// Session returns metadata about the scan session this reader is accessing.
	Session() *spectrum.ScanSession

	// Next advances the iterator and returns true if there is another sweep
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current sweep in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *SweepRecord

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a SqliteSweepReader with specific filtering criteria.
type ReaderOption func(*SqliteSweepReader)

// WithMinFreq excludes bins below f MHz.
func WithMinFreq(f float64) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.minFreq = &f
	}
}

// WithMaxFreq excludes bins above f MHz.
func WithMaxFreq(f float64) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.maxFreq = &f
	}
}

// WithFreqRange sets both minimum and maximum frequency filters, in MHz.
func WithFreqRange(minFreq, maxFreq float64) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.minFreq = &minFreq
		r.maxFreq = &maxFreq
	}
}

// WithStartTime excludes sweeps taken before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteSweepReader) {
		t = t.UTC()
		r.startTime = &t
	}
}

// WithEndTime excludes sweeps taken after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteSweepReader) {
		t = t.UTC()
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteSweepReader) {
		startTime, endTime = startTime.UTC(), endTime.UTC()
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// newSqliteSweepReader creates a reader over the sweeps of a session,
// applying optional filters.
func newSqliteSweepReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteSweepReader, error) {
	sr := &SqliteSweepReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(sr)
	}
	if err := sr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return sr, nil
}

// SqliteSweepReader implements SweepReader for SQLite database backend.
type SqliteSweepReader struct {
	db *sql.DB

	sessionID int64
	session   *spectrum.ScanSession
	count     int // sweeps in the session

	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter
	minFreq   *float64   // Optional minimum frequency filter
	maxFreq   *float64   // Optional maximum frequency filter

	current *SweepRecord
	next    *binData // first row of the next sweep
	rows    *sql.Rows
	err     error
}

func (sr *SqliteSweepReader) init(ctx context.Context) error {
	if sr.db == nil {
		return errors.New("database connection required")
	}
	if sr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: sr.loadSession},
		{msg: "initializing filters", fn: sr.initFilters},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (sr *SqliteSweepReader) loadSession(ctx context.Context) (err error) {
	sr.session, err = loadSession(ctx, sr.db, sr.sessionID)
	return err
}

func (sr *SqliteSweepReader) initFilters(ctx context.Context) (err error) {
	if sr.startTime != nil && sr.endTime != nil && sr.startTime.After(*sr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", sr.startTime, sr.endTime)
	}
	if sr.minFreq != nil && sr.maxFreq != nil && *sr.minFreq > *sr.maxFreq {
		return fmt.Errorf("min frequency %f is greater than max frequency %f", *sr.minFreq, *sr.maxFreq)
	}

	stmt, err := sr.db.PrepareContext(ctx, selectFilterValuesSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var minFreq, maxFreq sql.NullFloat64
	var startTime, endTime buggySqliteDatetime
	if err = stmt.QueryRowContext(ctx, sr.sessionID).Scan(&minFreq, &maxFreq, &startTime, &endTime, &sr.count); err != nil {
		return fmt.Errorf("scanning filters data: %w", err)
	}
	if sr.count == 0 || !minFreq.Valid || !startTime.Valid {
		return ErrNoData
	}

	if sr.minFreq == nil {
		sr.minFreq = &minFreq.Float64
	}
	if sr.maxFreq == nil {
		sr.maxFreq = &maxFreq.Float64
	}
	if sr.startTime == nil {
		sr.startTime = &startTime.Datetime
	}
	if sr.endTime == nil {
		sr.endTime = &endTime.Datetime
	}

	return nil
}

func (sr *SqliteSweepReader) initQuery(ctx context.Context) (err error) {
	stmt, err := sr.db.PrepareContext(ctx, selectBinsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	sr.rows, err = stmt.QueryContext(ctx, sr.sessionID, sr.startTime, sr.endTime, *sr.minFreq, *sr.maxFreq)
	return err
}

func (sr *SqliteSweepReader) scanRow() (*binData, error) {
	var row binData
	err := sr.rows.Scan(
		&row.SweepID,
		&row.Timestamp,
		&row.Frequency,
		&row.Power,
		&row.FixTime,
		&row.Latitude,
		&row.Longitude,
		&row.Altitude,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning bin: %w", err)
	}
	return &row, nil
}

func (sr *SqliteSweepReader) startRecord(row *binData) {
	sr.current = &SweepRecord{
		ID: row.SweepID,
		Spectrum: spectrum.Spectrum{
			Timestamp: row.Timestamp,
			Bins:      []spectrum.Bin{{Freq: row.Frequency, Power: row.Power}},
		},
		Location: toLocation(row.Timestamp, &row.locationData),
	}
}

// Session returns the session the reader iterates over.
func (sr *SqliteSweepReader) Session() *spectrum.ScanSession {
	return sr.session
}

// Count returns the number of sweeps stored for the session, regardless of
// filters.
func (sr *SqliteSweepReader) Count() int {
	return sr.count
}

// Extent returns the effective frequency filter, in MHz.
func (sr *SqliteSweepReader) Extent() (minFreq, maxFreq float64) {
	return *sr.minFreq, *sr.maxFreq
}

// TimeRange returns the effective time filter.
func (sr *SqliteSweepReader) TimeRange() (start, end time.Time) {
	return *sr.startTime, *sr.endTime
}

func (sr *SqliteSweepReader) Next(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	sr.current = nil
	if sr.next != nil {
		sr.startRecord(sr.next)
		sr.next = nil
	}

	for {
		select {
		case <-ctx.Done():
			sr.err = ctx.Err()
			return false
		default:
		}

		if !sr.rows.Next() {
			if sr.current != nil {
				sr.err = ErrNoData
				return true
			}
			return false
		}

		row, err := sr.scanRow()
		if err != nil {
			sr.err = err
			return false
		}

		if sr.current == nil {
			sr.startRecord(row)
			continue
		}

		// sweep boundary
		if row.SweepID != sr.current.ID {
			sr.next = row
			return true
		}

		sr.current.Spectrum.Bins = append(sr.current.Spectrum.Bins, spectrum.Bin{Freq: row.Frequency, Power: row.Power})
	}
}

func (sr *SqliteSweepReader) Current() *SweepRecord {
	return sr.current
}

func (sr *SqliteSweepReader) Error() error {
	if sr.err != nil && !errors.Is(sr.err, ErrNoData) {
		return sr.err
	}
	if sr.rows != nil {
		return sr.rows.Err()
	}
	return nil
}

func (sr *SqliteSweepReader) Close() error {
	if sr.rows != nil {
		err := sr.rows.Close()
		sr.current = nil
		sr.next = nil
		sr.rows = nil
		return err
	}
	return nil
}

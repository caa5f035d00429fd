package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "scans.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestSession(t *testing.T, s *SqliteStore, runID string) int64 {
	t.Helper()

	id, err := s.CreateSession(context.Background(), &spectrum.ScanSession{
		RunID:      runID,
		StartTime:  time.Unix(1700000000, 0),
		DeviceType: "rtl-tcp",
		DeviceID:   "roof",
		Tuner:      "R820T",
	}, map[string]any{"start": 87e6})
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return id
}

func testSpectrum(ts int64, n int) *spectrum.Spectrum {
	s := spectrum.Spectrum{Timestamp: time.Unix(ts, 0)}
	for i := 0; i < n; i++ {
		s.Bins = append(s.Bins, spectrum.Bin{Freq: 100 + float64(i)*0.001, Power: float64(-i)})
	}
	return &s
}

func TestSqliteStore_Sessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := createTestSession(t, s, "7d1e6c1a-0000-4000-8000-000000000001")
	second := createTestSession(t, s, "7d1e6c1a-0000-4000-8000-000000000002")

	session, err := s.Session(ctx, first)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if session.RunID != "7d1e6c1a-0000-4000-8000-000000000001" || session.Tuner != "R820T" || session.DeviceType != "rtl-tcp" {
		t.Errorf("unexpected session %+v", session)
	}
	if !session.StartTime.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected start time %s", session.StartTime)
	}
	if session.Config == nil || *session.Config != `{"start":87000000}` {
		t.Errorf("unexpected config %v", session.Config)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("listing sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[1].ID != second {
		t.Errorf("expected two sessions, got %d", len(sessions))
	}

	if _, err = s.Session(ctx, 42); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData for a missing session, got %v", err)
	}

	if err = s.SetSessionTuner(ctx, second, "E4000"); err != nil {
		t.Fatalf("setting tuner: %v", err)
	}
	if session, err = s.Session(ctx, second); err != nil || session.Tuner != "E4000" {
		t.Errorf("expected the tuner to be updated, got %+v (%v)", session, err)
	}
	if err = s.SetSessionTuner(ctx, 42, "E4000"); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData for a missing session, got %v", err)
	}

	// run identifiers are unique
	if _, err = s.CreateSession(ctx, &spectrum.ScanSession{RunID: session.RunID}, nil); err == nil {
		t.Error("expected a duplicate run ID to be rejected")
	}
}

func TestSqliteStore_Sweeps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessionID := createTestSession(t, s, "run-1")

	// spans more than one insert batch
	sweeps := []*spectrum.Spectrum{
		testSpectrum(1700000001, insertBatchSize+10),
		testSpectrum(1700000002, insertBatchSize+10),
		testSpectrum(1700000003, insertBatchSize+10),
	}
	for _, sw := range sweeps {
		if _, err := s.StoreSweep(ctx, sessionID, sw); err != nil {
			t.Fatalf("storing sweep: %v", err)
		}
	}

	alt := 420.0
	loc := spectrum.Location{
		Timestamp: time.Unix(1700000002, 0),
		FixTime:   time.Unix(1700000001, 500),
		Latitude:  47.37,
		Longitude: 8.54,
		Altitude:  &alt,
	}
	if _, err := s.StoreLocation(ctx, sessionID, &loc); err != nil {
		t.Fatalf("storing location: %v", err)
	}
	loc.Latitude = 47.38
	if _, err := s.StoreLocation(ctx, sessionID, &loc); err != nil {
		t.Fatalf("replacing location: %v", err)
	}

	r, err := s.ReadSweeps(ctx, sessionID)
	if err != nil {
		t.Fatalf("reading sweeps: %v", err)
	}
	defer r.Close()

	if r.Count() != 3 {
		t.Errorf("expected 3 sweeps, got %d", r.Count())
	}
	if lo, hi := r.Extent(); lo != 100 || hi != sweeps[0].Bins[len(sweeps[0].Bins)-1].Freq {
		t.Errorf("unexpected extent %f - %f", lo, hi)
	}

	var got []*SweepRecord
	for r.Next(ctx) {
		got = append(got, r.Current())
	}
	if err = r.Error(); err != nil {
		t.Fatalf("iterating: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 sweeps, got %d", len(got))
	}
	for i, rec := range got {
		if !rec.Spectrum.Timestamp.Equal(sweeps[i].Timestamp) {
			t.Errorf("sweep %d: expected %s, got %s", i, sweeps[i].Timestamp, rec.Spectrum.Timestamp)
		}
		if len(rec.Spectrum.Bins) != len(sweeps[i].Bins) {
			t.Fatalf("sweep %d: expected %d bins, got %d", i, len(sweeps[i].Bins), len(rec.Spectrum.Bins))
		}
		for j, b := range rec.Spectrum.Bins {
			if b != sweeps[i].Bins[j] {
				t.Fatalf("sweep %d bin %d: expected %+v, got %+v", i, j, sweeps[i].Bins[j], b)
			}
		}
	}

	if got[0].Location != nil || got[2].Location != nil {
		t.Error("only the second sweep was tagged with a location")
	}
	if l := got[1].Location; l == nil || l.Latitude != 47.38 || l.Altitude == nil || *l.Altitude != alt {
		t.Errorf("unexpected location %+v", l)
	}
}

func TestSqliteStore_ReadFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessionID := createTestSession(t, s, "run-1")
	for ts := int64(1700000001); ts <= 1700000005; ts++ {
		if _, err := s.StoreSweep(ctx, sessionID, testSpectrum(ts, 100)); err != nil {
			t.Fatalf("storing sweep: %v", err)
		}
	}

	r, err := s.ReadSweeps(ctx, sessionID,
		WithTimeRange(time.Unix(1700000002, 0), time.Unix(1700000004, 0)),
		WithFreqRange(100.0095, 100.0195))
	if err != nil {
		t.Fatalf("reading sweeps: %v", err)
	}
	defer r.Close()

	var count int
	for r.Next(ctx) {
		count++
		bins := r.Current().Spectrum.Bins
		if len(bins) != 10 {
			t.Errorf("expected 10 bins within the frequency filter, got %d", len(bins))
		}
	}
	if err = r.Error(); err != nil {
		t.Fatalf("iterating: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 sweeps within the time filter, got %d", count)
	}

	if _, err = s.ReadSweeps(ctx, sessionID, WithFreqRange(101, 100)); err == nil {
		t.Error("expected an inverted frequency range to be rejected")
	}
}

func TestSqliteStore_Empty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessionID := createTestSession(t, s, "run-1")

	if _, err := s.ReadSweeps(ctx, sessionID); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
	if _, err := s.StoreSweep(ctx, sessionID, &spectrum.Spectrum{}); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData storing an empty sweep, got %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close must be a no-op, got %v", err)
	}
}

func TestBuggySqliteDatetime_Scan(t *testing.T) {
	testCases := []struct {
		value any
		valid bool
	}{
		{"2023-11-14 22:13:21+00:00", true},
		{[]byte("2023-11-14T22:13:21.5+00:00"), true},
		{"2023-11-14 22:13:21", true},
		{time.Unix(1700000001, 0), true},
		{nil, false},
	}

	for _, tc := range testCases {
		var d buggySqliteDatetime
		if err := d.Scan(tc.value); err != nil {
			t.Errorf("%v: unexpected error: %v", tc.value, err)
		}
		if d.Valid != tc.valid {
			t.Errorf("%v: expected valid=%v", tc.value, tc.valid)
		}
	}

	var d buggySqliteDatetime
	if err := d.Scan("yesterday"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

// Store provides an interface for persisting scan runs: sessions, finished
// sweeps and the location fixes tagged against them.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession records the start of a scan run and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - session: Run metadata; ID is ignored and assigned by the store
	//   - config: Optional run configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, session *spectrum.ScanSession, config any) (sessionID int64, err error)

	// Session retrieves a specific scan session by its ID.
	Session(ctx context.Context, id int64) (session *spectrum.ScanSession, err error)

	// SetSessionTuner records the tuner reported by the device once the run
	// has opened it.
	SetSessionTuner(ctx context.Context, id int64, tuner string) error

	// Sessions returns all scan sessions ordered by start time.
	Sessions(ctx context.Context) (sessions []*spectrum.ScanSession, err error)

	// StoreSweep saves a finished sweep spectrum. All bins of the sweep are
	// stored in a single transaction.
	//
	// Returns:
	//   - sweepID: Unique identifier for the stored sweep
	//   - error: If storage fails or context is cancelled
	StoreSweep(ctx context.Context, sessionID int64, s *spectrum.Spectrum) (sweepID int64, err error)

	// StoreLocation saves a location fix tagged against a sweep timestamp. A
	// later fix for the same timestamp replaces the earlier one.
	StoreLocation(ctx context.Context, sessionID int64, loc *spectrum.Location) (locationID int64, err error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}

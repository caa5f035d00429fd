package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a store backed by the SQLite database at dbPath.
// Connections are opened lazily and the schema is created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1) // single writer

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, session *spectrum.ScanSession, config any) (sessionID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch c := config.(type) {
		case string:
			configData.Valid = true
			configData.String = c

		case []byte:
			configData.Valid = true
			configData.String = string(c)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx,
		session.RunID,
		session.StartTime.UTC(),
		session.DeviceType,
		session.DeviceID,
		toNullString(session.Tuner),
		configData,
	)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) SetSessionTuner(ctx context.Context, id int64, tuner string) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, updateSessionTunerSQL, toNullString(tuner), id)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %d: %w", id, ErrNoData)
	}
	return nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *spectrum.ScanSession, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}
	return loadSession(ctx, db, id)
}

func loadSession(ctx context.Context, db *sql.DB, id int64) (session *spectrum.ScanSession, err error) {
	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data sessionData
	err = stmt.QueryRowContext(ctx, id).Scan(
		&data.ID,
		&data.RunID,
		&data.StartTime,
		&data.DeviceType,
		&data.DeviceID,
		&data.Tuner,
		&data.Config,
	)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("session %d: %w", id, ErrNoData)
		return
	}
	if err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}

	return data.toSession(), nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*spectrum.ScanSession, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data sessionData
		if err = rows.Scan(
			&data.ID,
			&data.RunID,
			&data.StartTime,
			&data.DeviceType,
			&data.DeviceID,
			&data.Tuner,
			&data.Config,
		); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, data.toSession())
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreSweep(ctx context.Context, sessionID int64, spec *spectrum.Spectrum) (sweepID int64, err error) {
	if len(spec.Bins) == 0 {
		return 0, fmt.Errorf("storing sweep: %w", ErrNoData)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	result, err := tx.ExecContext(ctx, insertSweepSQL, sessionID, spec.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("inserting sweep: %w", err)
	}
	if sweepID, err = result.LastInsertId(); err != nil {
		return 0, fmt.Errorf("getting sweep ID: %w", err)
	}

	for chunk := range slices.Chunk(spec.Bins, insertBatchSize) {
		values := make([]any, 0, len(chunk)*3)

		var sb strings.Builder
		sb.WriteString(insertBinsSQL)

		for i, b := range chunk {
			values = append(values, sweepID, b.Freq, b.Power)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?)")
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return 0, fmt.Errorf("batch inserting bins: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	return sweepID, nil
}

func (s *SqliteStore) StoreLocation(ctx context.Context, sessionID int64, loc *spectrum.Location) (locationID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertLocationSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx,
		sessionID,
		loc.Timestamp.UTC(),
		loc.FixTime.UTC(),
		loc.Latitude,
		loc.Longitude,
		toNullFloat64(loc.Altitude),
	)
	if err != nil {
		err = fmt.Errorf("inserting location: %w", err)
		return
	}

	locationID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting location ID: %w", err)
	}
	return
}

// ReadSweeps creates a SweepReader iterating over the stored sweeps of a
// session in timestamp order.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - sessionID: Unique identifier of the scan session to read from
//   - opts: Optional filters (WithTimeRange, WithFreqRange and friends)
//
// The returned reader must be closed after use to release database resources.
// Returns ErrNoData if the session holds no sweeps.
func (s *SqliteStore) ReadSweeps(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SqliteSweepReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteSweepReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

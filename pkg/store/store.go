// Package store records decoded samples into a SQLite database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"razorlink/pkg/protocol"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNoRows is returned by the Latest* queries when a session has no data.
var ErrNoRows = errors.New("store: no rows")

// Store wraps the recorder database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// MigrateUp runs all pending migrations. Already being at the latest
// version is not an error.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it closes the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Version reports the applied schema version. A fresh database reports 0.
func (s *Store) Version() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

// NewSession registers a recording session and returns a Recorder bound
// to it.
func (s *Store) NewSession(ctx context.Context, source string) (*Recorder, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, source, started_at) VALUES (?, ?, ?)`,
		id, source, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &Recorder{store: s, session: id}, nil
}

// Sessions lists recorded session ids, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions ORDER BY started_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CountOrientation(ctx context.Context, session string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orientation WHERE session_id = ?`, session).Scan(&n)
	return n, err
}

func (s *Store) CountAnalogs(ctx context.Context, session string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analogs WHERE session_id = ?`, session).Scan(&n)
	return n, err
}

// LatestOrientation returns the most recent attitude for a session.
func (s *Store) LatestOrientation(ctx context.Context, session string) (protocol.Orientation, time.Time, error) {
	var (
		o  protocol.Orientation
		ns int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ts_unix_nano, roll, pitch, yaw FROM orientation
		WHERE session_id = ? ORDER BY ts_unix_nano DESC, rowid DESC LIMIT 1`, session,
	).Scan(&ns, &o.Roll, &o.Pitch, &o.Yaw)
	if errors.Is(err, sql.ErrNoRows) {
		return o, time.Time{}, ErrNoRows
	}
	if err != nil {
		return o, time.Time{}, err
	}
	return o, time.Unix(0, ns).UTC(), nil
}

// LatestAnalogs returns the most recent analog/accel readings for a session.
func (s *Store) LatestAnalogs(ctx context.Context, session string) (protocol.Analogs, error) {
	var a protocol.Analogs
	err := s.db.QueryRowContext(ctx, `
		SELECT analog_x, analog_y, analog_z, accel_x, accel_y, accel_z FROM analogs
		WHERE session_id = ? ORDER BY ts_unix_nano DESC, rowid DESC LIMIT 1`, session,
	).Scan(&a.Analog.X, &a.Analog.Y, &a.Analog.Z, &a.Accel.X, &a.Accel.Y, &a.Accel.Z)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNoRows
	}
	return a, err
}

// LatestStats returns the last decoder counters snapshot for a session.
func (s *Store) LatestStats(ctx context.Context, session string) (protocol.Stats, error) {
	var st protocol.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT payload_length_errors, checksum_errors, messages_received,
		       malformed_payloads, bytes_consumed
		FROM decoder_stats WHERE session_id = ?
		ORDER BY ts_unix_nano DESC, rowid DESC LIMIT 1`, session,
	).Scan(&st.PayloadLengthErrors, &st.ChecksumErrors, &st.MessagesReceived,
		&st.MalformedPayloads, &st.BytesConsumed)
	if errors.Is(err, sql.ErrNoRows) {
		return st, ErrNoRows
	}
	return st, err
}

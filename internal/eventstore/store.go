package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-tts/internal/config"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session has no journal entries.
var ErrNotFound = errors.New("session not found")

// Event is one lifecycle entry of a synthesis session.
type Event struct {
	ID        int64
	SessionID string
	State     string
	Detail    string
	CreatedAt time.Time
}

// Session is the latest known state of a synthesis session.
type Session struct {
	ID        string
	Runtime   string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store journals session lifecycles in SQLite.
type Store struct {
	db      *sql.DB
	cfg     config.EventStoreConfig
	runtime string
	log     *slog.Logger
	clock   func() time.Time
}

// Open initializes the journal according to config. The ephemeral retention
// mode keeps nothing.
func Open(ctx context.Context, cfg config.EventStoreConfig, runtime string, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, runtime: runtime, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, runtime: runtime, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    runtime TEXT,
    state TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    state TEXT NOT NULL,
    detail TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, id);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) persistent() bool {
	return s.cfg.RetentionMode != "ephemeral" && s.db != nil
}

// Record appends a lifecycle entry. Entries other than "note" also move the
// session's current state.
func (s *Store) Record(ctx context.Context, sessionID, state, detail string) error {
	if !s.persistent() {
		return nil
	}
	now := s.clock().UTC().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions(session_id, runtime, state, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, s.runtime, state, now, now)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if state != "note" {
		if _, err = tx.ExecContext(ctx,
			`UPDATE sessions SET state = ?, updated_at = ? WHERE session_id = ?`,
			state, now, sessionID); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO session_events(session_id, state, detail, created_at) VALUES(?, ?, ?, ?)`,
		sessionID, state, detail, now); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	err = tx.Commit()
	return err
}

// Session returns the current state of a session.
func (s *Store) Session(ctx context.Context, sessionID string) (Session, error) {
	if !s.persistent() {
		return Session{}, ErrNotFound
	}
	var (
		sess             Session
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, runtime, state, created_at, updated_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&sess.ID, &sess.Runtime, &sess.State, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	sess.CreatedAt = time.UnixMilli(created).UTC()
	sess.UpdatedAt = time.UnixMilli(updated).UTC()
	return sess, nil
}

// ListSessionEvents retrieves up to limit entries for a session in the order
// they were recorded.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if !s.persistent() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, state, detail, created_at
		 FROM session_events WHERE session_id = ? ORDER BY id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.State, &detail, &created); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		e.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on startup and scheduled by the runtime).
func (s *Store) Prune(ctx context.Context) (err error) {
	if !s.persistent() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC().UnixMilli()
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY updated_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Ensure checks that an ephemeral store holds no database.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}

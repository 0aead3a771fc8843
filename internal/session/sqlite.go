package session

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aether-labs/aether/internal/core"
)

//go:embed migrations/001_sessions.sql
var migrationV1 string

// interruptedMessage is recorded on sessions whose pipeline was running when
// the process stopped.
const interruptedMessage = "analysis interrupted by server restart"

// SQLiteStore persists session snapshots in SQLite. Live sessions are kept
// in memory so the running coordinator and readers share one object; the
// database is the durable copy.
type SQLiteStore struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
	live map[string]*core.Session
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{path: path, db: db, live: make(map[string]*core.Session)}
	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.failInterrupted(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// failInterrupted moves sessions left mid-pipeline by a previous process to
// ERROR so clients do not wait on them forever.
func (s *SQLiteStore) failInterrupted(ctx context.Context) error {
	active := []core.State{
		core.StateExtractingFactors, core.StateArguing, core.StateCountering,
		core.StateSynthesizing, core.StateRateLimitTerminated, core.StateGeneratingReport,
	}
	for _, st := range active {
		rows, err := s.db.QueryContext(ctx, "SELECT snapshot FROM sessions WHERE state = ?", string(st))
		if err != nil {
			return fmt.Errorf("scanning interrupted sessions: %w", err)
		}
		var stale []*core.Session
		for rows.Next() {
			sess, err := scanSession(rows)
			if err != nil {
				_ = rows.Close()
				return err
			}
			stale = append(stale, sess)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		for _, sess := range stale {
			if err := sess.Fail(errors.New(interruptedMessage)); err != nil {
				continue
			}
			if err := s.write(ctx, sess, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// Create implements core.SessionStore.
func (s *SQLiteStore) Create(ctx context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[sess.ID()]; ok {
		return core.ErrValidation(core.CodeDuplicateSession, fmt.Sprintf("session %s already exists", sess.ID()))
	}
	if err := s.write(ctx, sess, true); err != nil {
		return err
	}
	s.live[sess.ID()] = sess
	return nil
}

// Get implements core.SessionStore. Sessions not held in memory are
// restored from their last snapshot.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.live[id]; ok {
		return sess, nil
	}

	row := s.db.QueryRowContext(ctx, "SELECT snapshot FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.SessionNotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	s.live[id] = sess
	return sess, nil
}

// Save implements core.SessionStore.
func (s *SQLiteStore) Save(ctx context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[sess.ID()]; !ok {
		return &core.SessionNotFoundError{ID: sess.ID()}
	}
	return s.write(ctx, sess, false)
}

func (s *SQLiteStore) write(ctx context.Context, sess *core.Session, insert bool) error {
	snap := sess.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling session %s: %w", snap.ID, err)
	}

	if insert {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, state, created_at, updated_at, snapshot)
			VALUES (?, ?, ?, ?, ?)`,
			snap.ID, string(snap.State), snap.CreatedAt.UnixNano(), snap.UpdatedAt.UnixNano(), string(data))
		if err != nil {
			return fmt.Errorf("inserting session %s: %w", snap.ID, err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET state = ?, updated_at = ?, snapshot = ? WHERE id = ?`,
		string(snap.State), snap.UpdatedAt.UnixNano(), string(data), snap.ID)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", snap.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.SessionNotFoundError{ID: snap.ID}
	}
	return nil
}

// Delete implements core.SessionStore.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	delete(s.live, id)
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.SessionNotFoundError{ID: id}
	}
	return nil
}

// List implements core.SessionStore.
func (s *SQLiteStore) List(ctx context.Context) ([]core.SessionSnapshot, error) {
	s.mu.Lock()
	live := make(map[string]*core.Session, len(s.live))
	for id, sess := range s.live {
		live[id] = sess
	}
	s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, snapshot FROM sessions ORDER BY created_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []core.SessionSnapshot
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		// Prefer the live object: it may be ahead of the last save.
		if sess, ok := live[id]; ok {
			out = append(out, sess.Snapshot())
			continue
		}
		var snap core.SessionSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("decoding session %s: %w", id, err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

// Sweep implements core.SessionStore.
func (s *SQLiteStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM sessions WHERE state IN (?, ?) AND updated_at < ?",
		string(core.StateComplete), string(core.StateError), cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("selecting expired sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
			return 0, fmt.Errorf("sweeping session %s: %w", id, err)
		}
		delete(s.live, id)
	}
	return len(ids), nil
}

// Close implements core.SessionStore.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*core.Session, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		return nil, err
	}
	var snap core.SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decoding session snapshot: %w", err)
	}
	return core.RestoreSession(snap), nil
}

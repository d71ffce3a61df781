package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteFileName is the database file inside the data directory.
const SQLiteFileName = "agents.db"

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	session_id    TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	registered_at TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);`

// SQLiteRepo stores agents in a single SQLite table.
type SQLiteRepo struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteRepo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteRepo{db: db, now: time.Now}, nil
}

func (r *SQLiteRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteRepo) Get(ctx context.Context, sessionID string) (Agent, error) {
	var (
		a                   Agent
		registered, updated string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, name, registered_at, updated_at FROM agents WHERE session_id = ?`,
		strings.TrimSpace(sessionID),
	).Scan(&a.SessionID, &a.Name, &registered, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("get agent: %w", err)
	}
	a.RegisteredAt, _ = time.Parse(timeFormat, registered)
	a.UpdatedAt, _ = time.Parse(timeFormat, updated)
	return a, nil
}

func (r *SQLiteRepo) Save(ctx context.Context, sessionID, name string) (Agent, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Agent{}, ErrNotFound
	}
	clean, err := CleanName(name)
	if err != nil {
		return Agent{}, err
	}
	now := r.now().UTC().Format(timeFormat)
	_, err = r.db.ExecContext(ctx, `
INSERT INTO agents (session_id, name, registered_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		sessionID, clean, now, now,
	)
	if err != nil {
		return Agent{}, fmt.Errorf("save agent: %w", err)
	}
	return r.Get(ctx, sessionID)
}

func (r *SQLiteRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return n, nil
}

// SnapshotTo writes a consistent copy of the database to dst, which must
// not exist yet.
func (r *SQLiteRepo) SnapshotTo(ctx context.Context, dst string) error {
	if _, err := r.db.ExecContext(ctx, `VACUUM INTO ?`, filepath.Clean(dst)); err != nil {
		return fmt.Errorf("snapshot agents db: %w", err)
	}
	return nil
}

var _ Repo = (*SQLiteRepo)(nil)

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/patientsim/internal/model"
	"github.com/pavelanni/patientsim/internal/session"

	_ "modernc.org/sqlite"
)

// Store is a durable session.Store backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ session.Store = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the session stored under key, or session.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (model.SessionData, error) {
	var raw string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, expires_at FROM sessions WHERE key = ?`, key,
	).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SessionData{}, session.ErrNotFound
	}
	if err != nil {
		return model.SessionData{}, err
	}
	if s.now().UnixMilli() >= expiresAt {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, key)
		return model.SessionData{}, session.ErrNotFound
	}

	var data model.SessionData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return model.SessionData{}, fmt.Errorf("decode session %s: %w", key, err)
	}
	return data, nil
}

// Set upserts a session and sets its expiry to now+ttl.
func (s *Store) Set(ctx context.Context, key string, data model.SessionData, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (key, data, updated_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at, expires_at = excluded.expires_at`,
		key, string(raw), now.UnixMilli(), now.Add(ttl).UnixMilli(),
	)
	return err
}

// Expire resets the expiry of an existing, unexpired session.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ? WHERE key = ? AND expires_at > ?`,
		now.Add(ttl).UnixMilli(), key, now.UnixMilli(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// CleanupExpired removes all expired sessions and reports how many went.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListSessions returns all unexpired sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]model.StoredSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, data, updated_at, expires_at FROM sessions WHERE expires_at > ? ORDER BY updated_at DESC, key`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.StoredSession
	for rows.Next() {
		var (
			ss                   model.StoredSession
			raw                  string
			updatedAt, expiresAt int64
		)
		if err := rows.Scan(&ss.Key, &raw, &updatedAt, &expiresAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &ss.Data); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", ss.Key, err)
		}
		ss.UpdatedAt = time.UnixMilli(updatedAt)
		ss.ExpiresAt = time.UnixMilli(expiresAt)
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

// SessionCount returns the number of rows, expired or not.
func (s *Store) SessionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

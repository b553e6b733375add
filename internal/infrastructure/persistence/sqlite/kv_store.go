// Package sqlite provides a single-file kv.Store for local and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS kv_entries (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		expires_at INTEGER,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_kv_entries_expires_at ON kv_entries(expires_at)`,
}

// KVStore implements kv.Store, kv.Expirer and kv.Lister on SQLite.
type KVStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ kv.Store = (*KVStore)(nil)

// Open opens (or creates) the database at path. Use ":memory:" for tests.
func Open(ctx context.Context, path string) (*KVStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: create data dir: %w", err)
			}
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: connect: %w", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	stmts := []string{`PRAGMA busy_timeout = 5000`}
	if path != ":memory:" {
		stmts = append(stmts, `PRAGMA journal_mode = WAL`)
	}
	for _, stmt := range append(stmts, schema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: init %q: %w", stmt, err)
		}
	}
	return &KVStore{db: db, now: time.Now}, nil
}

// WithClock sets the time source used for expiry.
func (s *KVStore) WithClock(now func() time.Time) *KVStore {
	s.now = now
	return s
}

// Close closes the database.
func (s *KVStore) Close() error {
	return s.db.Close()
}

// Ping checks the database.
func (s *KVStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, kv.ErrEmptyKey
	}
	var value string
	err := s.db.GetContext(ctx, &value, `
		SELECT value FROM kv_entries
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().UnixMilli())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	return s.upsert(ctx, key, value, nil)
}

func (s *KVStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	exp := s.now().Add(ttl).UnixMilli()
	return s.upsert(ctx, key, value, &exp)
}

func (s *KVStore) upsert(ctx context.Context, key, value string, expiresAt *int64) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		key, value, expiresAt, s.now().UnixMilli())
	return err
}

func (s *KVStore) Remove(ctx context.Context, key string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key)
	return err
}

// Keys lists live keys starting with prefix.
func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := s.db.SelectContext(ctx, &keys, `
		SELECT key FROM kv_entries
		WHERE substr(key, 1, ?) = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key`,
		len(prefix), prefix, s.now().UnixMilli())
	return keys, err
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *KVStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package postgres

import (
	"context"
	"time"

	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
)

// KVStore implements kv.Store on the kv_entries table.
type KVStore struct {
	db  Querier
	now func() time.Time
}

// NewKVStore returns a store backed by db.
func NewKVStore(db Querier) *KVStore {
	return &KVStore{db: db, now: time.Now}
}

var _ kv.Store = (*KVStore)(nil)

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, kv.ErrEmptyKey
	}
	var value string
	err := s.db.QueryRow(ctx, `
		SELECT value FROM kv_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, key, s.now()).Scan(&value)
	if err != nil {
		if IsNoRows(err) {
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
	exp := s.now().Add(ttl)
	return s.upsert(ctx, key, value, &exp)
}

func (s *KVStore) upsert(ctx context.Context, key, value string, expiresAt *time.Time) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO kv_entries (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`, key, value, expiresAt)
	return err
}

func (s *KVStore) Remove(ctx context.Context, key string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	_, err := s.db.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key)
	return err
}

// Keys lists live keys starting with prefix.
func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT key FROM kv_entries
		WHERE starts_with(key, $1) AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY key
	`, prefix, s.now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *KVStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

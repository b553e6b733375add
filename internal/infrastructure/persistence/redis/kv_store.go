package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
)

// KVStore implements kv.Store, kv.Expirer and kv.Lister with plain Redis strings.
type KVStore struct {
	client redis.UniversalClient
	prefix string
}

// NewKVStore returns a store whose keys live under prefix+PrefixKV.
func NewKVStore(client redis.UniversalClient, prefix string) *KVStore {
	return &KVStore{client: client, prefix: prefix + PrefixKV}
}

var _ kv.Store = (*KVStore)(nil)

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, kv.ErrEmptyKey
	}
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

func (s *KVStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *KVStore) Remove(ctx context.Context, key string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Keys scans for keys under prefix. Returned keys have the store prefix stripped.
func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+prefix+"*", 200).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

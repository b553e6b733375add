package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
)

func openTestStore(t *testing.T) *KVStore {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKVStore_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.Get(ctx, kv.KeyLearningStreak)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, kv.KeyLearningStreak, `{"currentStreak":2}`))
	require.NoError(t, s.Set(ctx, kv.KeyLearningStreak, `{"currentStreak":3}`))

	v, ok, err := s.Get(ctx, kv.KeyLearningStreak)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"currentStreak":3}`, v)

	require.NoError(t, s.Remove(ctx, kv.KeyLearningStreak))
	_, ok, err = s.Get(ctx, kv.KeyLearningStreak)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVStore_ExpiryAndPurge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t).WithClock(func() time.Time { return now })

	require.NoError(t, s.SetWithTTL(ctx, "session:1", "x", time.Minute))
	require.NoError(t, s.Set(ctx, "session:2", "y"))

	now = now.Add(2 * time.Minute)
	_, ok, err := s.Get(ctx, "session:1")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.Keys(ctx, "session:")
	require.NoError(t, err)
	assert.Equal(t, []string{"session:2"}, keys)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestKVStore_WorksBehindPrefix(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	p := kv.NewPrefixed(s, kv.LearnerPrefix("alice"))

	require.NoError(t, kv.SetJSON(ctx, p, kv.KeyUserAchievements, []string{"a"}))
	keys, err := s.Keys(ctx, "learner:alice:")
	require.NoError(t, err)
	assert.Equal(t, []string{"learner:alice:userAchievements"}, keys)
}

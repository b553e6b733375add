package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "a", "1"))
	v, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, m.Remove(ctx, "a"))
	_, ok, _ = m.Get(ctx, "a")
	assert.False(t, ok)

	assert.ErrorIs(t, m.Set(ctx, "", "x"), ErrEmptyKey)
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })

	require.NoError(t, SetWithTTL(ctx, m, "k", "v", time.Minute))
	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestPrefixed_IsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	alice := NewPrefixed(base, LearnerPrefix("alice"))
	bob := NewPrefixed(base, LearnerPrefix("bob"))

	require.NoError(t, alice.Set(ctx, KeyLearningStreak, "a"))
	_, ok, _ := bob.Get(ctx, KeyLearningStreak)
	assert.False(t, ok)

	keys, err := base.Keys(ctx, "learner:alice:")
	require.NoError(t, err)
	assert.Equal(t, []string{"learner:alice:learningStreak"}, keys)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	type rec struct {
		N int `json:"n"`
	}

	require.NoError(t, SetJSON(ctx, m, "r", rec{N: 3}))
	var got rec
	ok, err := GetJSON(ctx, m, "r", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, got.N)

	require.NoError(t, m.Set(ctx, "bad", "{"))
	ok, err = GetJSON(ctx, m, "bad", &got)
	assert.True(t, ok)
	assert.Error(t, err)
}

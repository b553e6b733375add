// Package kv defines the key-value persistence contract used for all learner
// and admin client state, plus in-process implementations.
//
// Keys mirror the browser storage keys the progress features were designed
// around (learningStreak, userAchievements, fastStatsCache, ...). A Prefixed
// store gives each learner an isolated namespace on a shared backend.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Well-known keys.
const (
	KeyCompletedLessons   = "completedLessons"
	KeyLearningStreak     = "learningStreak"
	KeyUserAchievements   = "userAchievements"
	KeyCacheInvalidated   = "progressCacheInvalidated"
	KeyFastStatsCache     = "fastStatsCache"
	KeyAdminSession       = "adminSession"
	KeyAdminLoginTime     = "adminLoginTime"
	KeyAdminUser          = "adminUser"
	KeyAuthToken          = "auth_token"
	KeyCommissionEarnings = "commissionEarnings"
)

// ErrEmptyKey is returned for operations on "".
var ErrEmptyKey = errors.New("kv: key cannot be empty")

// Store is a string key-value store. Get reports presence separately from errors.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Expirer is implemented by stores that can expire keys natively.
type Expirer interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// Lister is implemented by stores that can enumerate keys under a prefix.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// GetJSON decodes the value at key into dest. It returns false when absent.
func GetJSON(ctx context.Context, s Store, key string, dest any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return true, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// SetWithTTL uses native expiry when s supports it and a plain Set otherwise.
func SetWithTTL(ctx context.Context, s Store, key, value string, ttl time.Duration) error {
	if e, ok := s.(Expirer); ok && ttl > 0 {
		return e.SetWithTTL(ctx, key, value, ttl)
	}
	return s.Set(ctx, key, value)
}

// RemoveAll removes every key, returning the first error after attempting all.
func RemoveAll(ctx context.Context, s Store, keys ...string) error {
	var first error
	for _, k := range keys {
		if err := s.Remove(ctx, k); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMORY
// ══════════════════════════════════════════════════════════════════════════════

type memEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is a goroutine-safe in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memEntry
	now  func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]memEntry), now: time.Now}
}

// WithClock sets the time source used for TTL expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	m.data[key] = memEntry{value: value}
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	m.data[key] = memEntry{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys, including not yet evicted expired ones.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// ══════════════════════════════════════════════════════════════════════════════
// PREFIXED
// ══════════════════════════════════════════════════════════════════════════════

// Prefixed namespaces every key of an underlying store.
type Prefixed struct {
	inner  Store
	prefix string
}

// NewPrefixed wraps inner so every key becomes prefix+key.
func NewPrefixed(inner Store, prefix string) *Prefixed {
	return &Prefixed{inner: inner, prefix: prefix}
}

// LearnerPrefix is the namespace of a learner's keys.
func LearnerPrefix(learnerID string) string {
	return "learner:" + learnerID + ":"
}

func (p *Prefixed) key(k string) (string, error) {
	if k == "" {
		return "", ErrEmptyKey
	}
	return p.prefix + k, nil
}

func (p *Prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	k, err := p.key(key)
	if err != nil {
		return "", false, err
	}
	return p.inner.Get(ctx, k)
}

func (p *Prefixed) Set(ctx context.Context, key, value string) error {
	k, err := p.key(key)
	if err != nil {
		return err
	}
	return p.inner.Set(ctx, k, value)
}

func (p *Prefixed) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	k, err := p.key(key)
	if err != nil {
		return err
	}
	return SetWithTTL(ctx, p.inner, k, value, ttl)
}

func (p *Prefixed) Remove(ctx context.Context, key string) error {
	k, err := p.key(key)
	if err != nil {
		return err
	}
	return p.inner.Remove(ctx, k)
}

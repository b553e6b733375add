package webrouter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/academy-hub/internal/application/guard"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
)

func TestRouter_PushAndPrefetch(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	store := kv.NewMemory()
	require.NoError(t, store.Set(context.Background(), kv.KeyAuthToken, "tok"))
	r := New(Config{BaseURL: srv.URL + "/", Token: TokenFromStore(store)})

	require.NoError(t, r.Prefetch(context.Background(), "/admin"))
	assert.True(t, r.Prefetched("/admin"))
	assert.Empty(t, r.Current())

	require.NoError(t, r.Push(context.Background(), "/admin"))
	assert.Equal(t, "/admin", r.Current())
	assert.Equal(t, "Bearer tok", auth.Load())

	err := r.Push(context.Background(), "/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Equal(t, "/admin", r.Current())
}

func TestRouter_URL(t *testing.T) {
	r := New(Config{BaseURL: "https://site.example/"})
	assert.Equal(t, "https://site.example/courses", r.URL("courses"))
	assert.Equal(t, "https://site.example/courses", r.URL("/courses"))
	assert.Equal(t, "https://other.example/x", r.URL("https://other.example/x"))
}

func TestRouter_WithNavigateFallsBackToHard(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	r := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	opts := guard.NavigateOptions{Retries: 2, FallbackToWindow: true, Sleep: func(context.Context, time.Duration) error { return nil }}
	res := guard.Navigate(context.Background(), r, "/admin/users", opts, &guard.InFlight{})

	assert.False(t, res.OK)
	assert.True(t, res.NeedsHardNavigation)
	assert.Len(t, res.Attempts, 3)
	assert.EqualValues(t, 3, hits.Load())
	assert.Equal(t, srv.URL+"/admin/users", r.URL(res.URL))
}

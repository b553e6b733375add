package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/academy-hub/internal/domain/admin"
	"github.com/learnpath/academy-hub/internal/domain/shared"
)

func testSession() admin.Session {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	return admin.NewSession("sid", admin.User{ID: "u-1", Username: "ops", Role: admin.RoleAdmin}, now, admin.DefaultPolicy())
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	sess := testSession()
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, status int, r Response) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(r)
	}
	mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "pw" {
			write(w, http.StatusUnauthorized, Response{Error: "invalid username or password"})
			return
		}
		write(w, http.StatusOK, Response{Success: true, Token: "tok", User: &sess.User, Session: &sess})
	})
	mux.HandleFunc(ValidatePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			write(w, http.StatusUnauthorized, Response{Valid: false})
			return
		}
		write(w, http.StatusOK, Response{Valid: true, User: &sess.User, Session: &sess})
	})
	mux.HandleFunc(RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc(LogoutPath, func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, Response{Success: true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_LoginAndValidate(t *testing.T) {
	c := NewClient(Config{BaseURL: newServer(t).URL})
	ctx := context.Background()

	grant, err := c.Login(ctx, "ops", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", grant.Token)
	assert.Equal(t, "u-1", grant.Session.User.ID)

	sess, err := c.Validate(ctx, grant.Token)
	require.NoError(t, err)
	assert.Equal(t, "sid", sess.ID)

	require.NoError(t, c.Logout(ctx, grant.Token))
}

func noWait(context.Context, time.Duration) error { return nil }

func TestClient_Failures(t *testing.T) {
	c := NewClient(Config{BaseURL: newServer(t).URL, Sleep: noWait})
	ctx := context.Background()

	_, err := c.Login(ctx, "ops", "bad")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = c.Validate(ctx, "other")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = c.Refresh(ctx, "tok")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{BaseURL: url, Timeout: time.Second, Sleep: noWait}).Validate(context.Background(), "tok")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	sess := testSession()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Response{Valid: true, Session: &sess})
	}))
	t.Cleanup(srv.Close)

	var waits []time.Duration
	c := NewClient(Config{BaseURL: srv.URL, Sleep: func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}})

	got, err := c.Validate(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "sid", got.ID)
	assert.EqualValues(t, 3, calls.Load())
	assert.Len(t, waits, 2)
}

func TestClient_RejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(Response{Error: "expired"})
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(Config{BaseURL: srv.URL, Sleep: noWait}).Validate(context.Background(), "tok")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
	assert.EqualValues(t, 1, calls.Load())
}

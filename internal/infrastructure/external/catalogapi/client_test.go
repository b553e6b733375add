package catalogapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/pkg/circuitbreaker"
)

const coursesJSON = `{"success":true,"data":[
 {"id":"bb","title":"Business Blueprint","track":"Foundation","modules":[
  {"id":"bb-1","title":"Basics","lessons":[
   {"id":"bb-1-1","title":"Welcome","duration":5,"isCompleted":true},
   {"id":"bb-1-2","title":"Goals"}]}]}]}`

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(url string) *Client {
	cfg := DefaultClientConfig(url)
	cfg.Sleep = noSleep
	return NewClient(cfg)
}

func TestFetchCourses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CoursesPath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(coursesJSON))
	}))
	defer srv.Close()

	cat, err := newTestClient(srv.URL + "/").FetchCourses(context.Background())
	require.NoError(t, err)
	require.Len(t, cat, 1)
	assert.Equal(t, "foundation", string(cat[0].Track))
	assert.Equal(t, 5, cat[0].Modules[0].Lessons[0].DurationMinutes)
	assert.Equal(t, 2, cat[0].TotalLessons())
}

func TestFetchCourses_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"code":"SERVER_ERROR","message":"boom"}`, http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(coursesJSON))
	}))
	defer srv.Close()

	cat, err := newTestClient(srv.URL).FetchCourses(context.Background())
	require.NoError(t, err)
	assert.Len(t, cat, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchCourses_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"code":"FORBIDDEN","message":"no"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchCourses(context.Background())
	assert.ErrorIs(t, err, shared.ErrCatalogUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchCourses_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := c.FetchCourses(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, c.BreakerState())

	before := calls.Load()
	_, err := c.FetchCourses(context.Background())
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, before, calls.Load())
}

func TestFetchCourses_InvalidCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"Bad Id","title":"x","modules":[]}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchCourses(context.Background())
	assert.True(t, shared.IsValidation(err))
}

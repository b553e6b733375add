package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int64
	err   error
	panic bool
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counts runs" }
func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	if j.panic {
		panic("boom")
	}
	return j.err
}

func TestScheduler_Register(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	assert.ErrorIs(t, s.Register(nil, time.Minute), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, 0), ErrInvalidInterval)

	require.NoError(t, s.Register(&countingJob{name: "a"}, time.Minute))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, time.Minute), ErrJobAlreadyExists)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, time.Minute, jobs[0].Interval)

	require.NoError(t, s.Unregister("a"))
	assert.ErrorIs(t, s.Unregister("a"), ErrJobNotFound)
	assert.Empty(t, s.ListJobs())
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("upstream down")}
	boom := &countingJob{name: "boom", panic: true}
	for _, j := range []*countingJob{ok, bad, boom} {
		require.NoError(t, s.Register(j, time.Hour))
	}

	var failed []string
	s.OnJobError(func(name string, err error) { failed = append(failed, name) })

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "bad")
	assert.EqualError(t, err, "upstream down")

	_, err = s.RunNow(context.Background(), "boom")
	assert.ErrorIs(t, err, ErrJobPanic)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.Equal(t, []string{"bad", "boom"}, failed)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(3), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalSuccesses)
	assert.Equal(t, int64(2), snap.TotalFailures)
	assert.InDelta(t, 1.0/3.0, snap.SuccessRate, 0.001)

	hist := s.GetHistory(2)
	require.Len(t, hist, 2)
	assert.Equal(t, "bad", hist[0].JobName)
	assert.Equal(t, "boom", hist[1].JobName)
}

func TestScheduler_HistoryIsBounded(t *testing.T) {
	s := NewScheduler(SchedulerConfig{MaxHistorySize: 3})
	j := &countingJob{name: "j"}
	require.NoError(t, s.Register(j, time.Hour))

	for i := 0; i < 5; i++ {
		_, err := s.RunNow(context.Background(), "j")
		require.NoError(t, err)
	}
	assert.Len(t, s.GetHistory(0), 3)
	assert.Equal(t, int64(5), s.ListJobs()[0].RunCount)
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	j := &countingJob{name: "tick"}
	require.NoError(t, s.Register(j, 20*time.Millisecond))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return j.runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())

	n := j.runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, j.runs.Load())
}

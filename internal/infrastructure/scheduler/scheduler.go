// Package scheduler runs periodic background jobs: the admin session poll,
// expired-key purges and catalog warm-up. Timing is delegated to gocron;
// this package adds job bookkeeping, metrics and manual runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/learnpath/academy-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	Description() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Manual      bool
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	cron   *gocron.Scheduler
	logger *logger.Logger

	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time

	metrics        *SchedulerMetrics
	lastRuns       map[string]*JobResult
	runHistory     []JobResult
	maxHistorySize int

	onJobError func(jobName string, err error)
}

type scheduledJob struct {
	job       Job
	interval  time.Duration
	runCount  int64
	failCount int64
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *logger.Logger

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location

	// MaxHistorySize is the maximum number of job results to keep in history.
	MaxHistorySize int
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Timezone:       time.UTC,
		MaxHistorySize: 200,
	}
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 200
	}

	cron := gocron.NewScheduler(config.Timezone)
	cron.SingletonModeAll()
	cron.WaitForScheduleAll()

	return &Scheduler{
		cron:           cron,
		logger:         config.Logger.With(logger.Component("scheduler")),
		jobs:           make(map[string]*scheduledJob),
		metrics:        NewSchedulerMetrics(),
		lastRuns:       make(map[string]*JobResult),
		maxHistorySize: config.MaxHistorySize,
	}
}

// Register adds a job that runs every interval. Jobs may be registered
// before or after Start.
func (s *Scheduler) Register(job Job, interval time.Duration) error {
	if job == nil {
		return ErrNilJob
	}
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{job: job, interval: interval}
	if _, err := s.cron.Every(interval).Tag(name).Do(s.runScheduled, sj); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		logger.String("job", name),
		logger.Duration("interval", interval),
	)
	return nil
}

// Unregister removes a job from the scheduler.
func (s *Scheduler) Unregister(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobName]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if err := s.cron.RemoveByTag(jobName); err != nil {
		return err
	}
	delete(s.jobs, jobName)
	return nil
}

// Start begins running jobs. The first run of each job happens one interval after Start.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = time.Now()
	s.cron.StartAsync()

	s.logger.Info("scheduler started", logger.Int("jobs_count", len(s.jobs)))
	return nil
}

// Stop stops scheduling and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	startedAt := s.startedAt
	s.mu.Unlock()

	s.cron.Stop()
	s.logger.Info("scheduler stopped", logger.Duration("uptime", time.Since(startedAt)))
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// OnJobError registers a hook called after a failed run.
func (s *Scheduler) OnJobError(fn func(jobName string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobError = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

func (s *Scheduler) runScheduled(sj *scheduledJob) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.execute(ctx, sj, false)
}

// RunNow immediately executes a job by name, ignoring its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.RLock()
	sj, exists := s.jobs[jobName]
	s.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	result := s.execute(ctx, sj, true)
	return &result, result.Error
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) JobResult {
	name := sj.job.Name()
	startedAt := time.Now()

	err := runSafely(ctx, sj.job)
	completedAt := time.Now()
	result := JobResult{
		JobName:     name,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
		Error:       err,
		Manual:      manual,
	}
	s.metrics.RecordExecution(name, result.Duration, err == nil)

	s.mu.Lock()
	sj.runCount++
	if err != nil {
		sj.failCount++
	}
	s.lastRuns[name] = &result
	s.runHistory = append(s.runHistory, result)
	if len(s.runHistory) > s.maxHistorySize {
		s.runHistory = s.runHistory[len(s.runHistory)-s.maxHistorySize:]
	}
	onErr := s.onJobError
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			logger.String("job", name),
			logger.Bool("manual", manual),
			logger.Latency(result.Duration),
			logger.Err(err),
		)
		if onErr != nil {
			onErr(name, err)
		}
	} else {
		s.logger.Debug("job completed", logger.String("job", name), logger.Latency(result.Duration))
	}
	return result
}

func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanic, r)
		}
	}()
	return job.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Interval    time.Duration
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns information about all registered jobs.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		out = append(out, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Interval:    sj.interval,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			LastResult:  s.lastRuns[name],
		})
	}
	return out
}

// GetHistory returns up to limit most recent results, newest last.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.runHistory) {
		limit = len(s.runHistory)
	}
	return append([]JobResult(nil), s.runHistory[len(s.runHistory)-limit:]...)
}

// GetMetrics returns the scheduler metrics.
func (s *Scheduler) GetMetrics() *SchedulerMetrics { return s.metrics }

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerMetrics tracks scheduler performance metrics.
type SchedulerMetrics struct {
	mu sync.RWMutex

	totalExecutions int64
	totalSuccesses  int64
	totalFailures   int64
	totalDuration   time.Duration
	failuresByJob   map[string]int64
}

// NewSchedulerMetrics creates a new metrics tracker.
func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{failuresByJob: make(map[string]int64)}
}

// RecordExecution records a job execution.
func (m *SchedulerMetrics) RecordExecution(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalExecutions++
	m.totalDuration += duration
	if success {
		m.totalSuccesses++
	} else {
		m.totalFailures++
		m.failuresByJob[jobName]++
	}
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *SchedulerMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		TotalExecutions: m.totalExecutions,
		TotalSuccesses:  m.totalSuccesses,
		TotalFailures:   m.totalFailures,
	}
	if m.totalExecutions > 0 {
		snap.AverageDuration = m.totalDuration / time.Duration(m.totalExecutions)
		snap.SuccessRate = float64(m.totalSuccesses) / float64(m.totalExecutions)
	}
	return snap
}

// MetricsSnapshot is a point-in-time snapshot of scheduler metrics.
type MetricsSnapshot struct {
	TotalExecutions int64         `json:"total_executions"`
	TotalSuccesses  int64         `json:"total_successes"`
	TotalFailures   int64         `json:"total_failures"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrInvalidInterval         = errors.New("interval must be positive")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobPanic                = errors.New("job panicked")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

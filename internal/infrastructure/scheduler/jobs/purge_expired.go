package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/learnpath/academy-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE EXPIRED KEYS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Purger deletes expired rows from a SQL-backed KV store.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// PurgeExpiredJob removes expired KV entries (fast stats, session records)
// that the SQL stores only filter on read.
type PurgeExpiredJob struct {
	store   Purger
	timeout time.Duration
	logger  *logger.Logger
}

// NewPurgeExpiredJob creates the job. A zero timeout means 30s.
func NewPurgeExpiredJob(store Purger, timeout time.Duration, log *logger.Logger) *PurgeExpiredJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PurgeExpiredJob{store: store, timeout: timeout, logger: log.With(logger.Component("kv_purge"))}
}

func (j *PurgeExpiredJob) Name() string        { return "kv_purge_expired" }
func (j *PurgeExpiredJob) Description() string { return "Deletes expired KV entries" }

func (j *PurgeExpiredJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	n, err := j.store.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge expired keys: %w", err)
	}
	if n > 0 {
		j.logger.Info("expired keys purged", logger.Int64("rows", n))
	}
	return nil
}

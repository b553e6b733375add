package jobs

import (
	"context"

	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG WARM-UP JOB
// ══════════════════════════════════════════════════════════════════════════════

// Invalidator drops a shared catalog copy.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// CatalogWarmupJob refreshes the shared catalog copy so request paths rarely
// pay for a remote fetch. When shared is set it is invalidated first.
type CatalogWarmupJob struct {
	source course.Source
	shared Invalidator
	logger *logger.Logger
}

// NewCatalogWarmupJob creates the job. shared may be nil.
func NewCatalogWarmupJob(source course.Source, shared Invalidator, log *logger.Logger) *CatalogWarmupJob {
	if log == nil {
		log = logger.Nop()
	}
	return &CatalogWarmupJob{source: source, shared: shared, logger: log.With(logger.Component("catalog_warmup"))}
}

func (j *CatalogWarmupJob) Name() string { return "catalog_warmup" }

func (j *CatalogWarmupJob) Description() string {
	return "Refetches the course catalog into the shared cache"
}

// Run fails when the fetched catalog does not validate, so a bad upstream
// publish shows up in the scheduler history.
func (j *CatalogWarmupJob) Run(ctx context.Context) error {
	if j.shared != nil {
		if err := j.shared.Invalidate(ctx); err != nil {
			j.logger.Warn("shared catalog invalidation failed", logger.Err(err))
		}
	}
	cat, err := j.source.FetchCourses(ctx)
	if err != nil {
		return err
	}
	if err := cat.Validate(); err != nil {
		return err
	}
	j.logger.Debug("catalog warmed", logger.Int("courses", len(cat)))
	return nil
}

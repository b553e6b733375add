// Package query contains the read side of learner progress: the catalog
// cache, the unified progress snapshot and the continue-learning target.
package query

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

// DefaultCatalogTTL is how long a fetched catalog is reused.
const DefaultCatalogTTL = time.Second

// CatalogCache holds the last fetched catalog for a short TTL.
// Concurrent refetches share one Source call.
type CatalogCache struct {
	source course.Source
	clock  timeutil.Clock
	ttl    time.Duration
	logger *logger.Logger

	mu        sync.Mutex
	catalog   course.Catalog
	fetchedAt time.Time
	valid     bool

	group   singleflight.Group
	fetches atomic.Int64
}

// NewCatalogCache creates a cache in front of source.
func NewCatalogCache(source course.Source, clock timeutil.Clock, ttl time.Duration, log *logger.Logger) *CatalogCache {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CatalogCache{
		source: source,
		clock:  clock,
		ttl:    ttl,
		logger: log.With(logger.Component("catalog_cache")),
	}
}

// Get returns the cached catalog, refetching when forceRefresh is set or the entry is older than the TTL.
// The returned catalog is a copy the caller may modify.
func (c *CatalogCache) Get(ctx context.Context, forceRefresh bool) (course.Catalog, error) {
	if !forceRefresh {
		c.mu.Lock()
		if c.valid && c.clock.Now().Sub(c.fetchedAt) < c.ttl {
			cat := c.catalog.Clone()
			c.mu.Unlock()
			return cat, nil
		}
		c.mu.Unlock()
	}

	v, err, _ := c.group.Do("catalog", func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(course.Catalog).Clone(), nil
}

func (c *CatalogCache) fetch(ctx context.Context) (course.Catalog, error) {
	start := c.clock.Now()
	c.fetches.Add(1)

	cat, err := c.source.FetchCourses(ctx)
	if err != nil {
		c.logger.Warn("catalog fetch failed", logger.Err(err))
		return nil, shared.WrapError("catalog", "Fetch", shared.ErrServiceUnavailable, "course catalog is unavailable", err)
	}
	if err := cat.Validate(); err != nil {
		c.logger.Error("catalog rejected", logger.Err(err))
		return nil, shared.WrapError("catalog", "Parse", shared.ErrInvalidFormat, "invalid catalog document", err)
	}

	c.mu.Lock()
	c.catalog = cat.Clone()
	c.fetchedAt = c.clock.Now()
	c.valid = true
	c.mu.Unlock()

	c.logger.Debug("catalog refreshed",
		logger.Int("courses", len(cat)),
		logger.Latency(c.clock.Now().Sub(start)),
	)
	return cat, nil
}

// Invalidate drops the cached entry so the next Get refetches.
func (c *CatalogCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// FetchCount is the number of Source calls made so far.
func (c *CatalogCache) FetchCount() int64 {
	return c.fetches.Load()
}

package redis

import (
	"context"
	"errors"
	"time"

	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// CatalogCache decorates a course.Source with a shared Redis copy so that a
// fleet of servers does not hammer the catalog API on every cache expiry.
type CatalogCache struct {
	cache  *Cache
	source course.Source
	key    string
	ttl    time.Duration
	log    *logger.Logger
}

// NewCatalogCache wraps source. name distinguishes catalogs sharing one Redis.
func NewCatalogCache(cache *Cache, source course.Source, name string, ttl time.Duration, log *logger.Logger) *CatalogCache {
	if ttl <= 0 {
		ttl = TTLCatalog
	}
	return &CatalogCache{cache: cache, source: source, key: CatalogKey(name), ttl: ttl, log: log}
}

// FetchCourses returns the shared copy or loads and stores a fresh one.
// Redis failures degrade to the wrapped source.
func (c *CatalogCache) FetchCourses(ctx context.Context) (course.Catalog, error) {
	var cached course.Catalog
	err := c.cache.Get(ctx, c.key, &cached)
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, ErrCacheMiss):
		c.log.Warn("catalog cache read failed", logger.Err(err))
	}

	fresh, err := c.source.FetchCourses(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, c.key, fresh, c.ttl); err != nil {
		c.log.Warn("catalog cache write failed", logger.Err(err))
	}
	return fresh, nil
}

// Invalidate drops the shared copy.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, c.key)
}

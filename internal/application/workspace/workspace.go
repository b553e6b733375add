// Package workspace is the per-learner composition of the progress services.
// Every learner gets the same services bound to their own key namespace.
package workspace

import (
	"sync"
	"time"

	"github.com/learnpath/academy-hub/internal/application/gamification"
	"github.com/learnpath/academy-hub/internal/application/query"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

// Workspace bundles the services of one learner.
type Workspace struct {
	LearnerID    shared.LearnerID
	Store        kv.Store
	Progress     *query.ProgressAggregator
	Continue     *query.ContinuationResolver
	Streaks      *gamification.StreakTracker
	Achievements *gamification.AchievementRecorder
}

// Config holds the settings shared by every workspace.
type Config struct {
	Location     *time.Location
	FastStatsTTL time.Duration
	Continue     query.ContinueOptions
}

// Factory builds workspaces over a shared store and catalog cache.
type Factory struct {
	store   kv.Store
	catalog *query.CatalogCache
	clock   timeutil.Clock
	config  Config
	logger  *logger.Logger

	mu    sync.Mutex
	locks map[string]*learnerLock
}

// learnerLock is dropped from the map once nobody holds or waits on it.
type learnerLock struct {
	mu   sync.Mutex
	refs int
}

// NewFactory creates a Factory.
func NewFactory(store kv.Store, catalog *query.CatalogCache, clock timeutil.Clock, cfg Config, log *logger.Logger) *Factory {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Factory{
		store:   store,
		catalog: catalog,
		clock:   clock,
		config:  cfg,
		logger:  log,
		locks:   make(map[string]*learnerLock),
	}
}

// For returns the workspace of learnerID.
func (f *Factory) For(learnerID string) (*Workspace, error) {
	id, err := shared.NewLearnerID(learnerID)
	if err != nil {
		return nil, err
	}

	log := f.logger.With(logger.LearnerID(id.String()))
	store := kv.NewPrefixed(f.store, kv.LearnerPrefix(id.String()))

	streaks := gamification.NewStreakTracker(store, f.clock, f.config.Location, log)
	agg := query.NewProgressAggregator(store, f.catalog, streaks, f.clock, f.config.FastStatsTTL, log)

	return &Workspace{
		LearnerID:    id,
		Store:        store,
		Progress:     agg,
		Continue:     query.NewContinuationResolver(agg, f.config.Continue, log),
		Streaks:      streaks,
		Achievements: gamification.NewAchievementRecorder(store, f.clock, log),
	}, nil
}

// Lock serializes writers of one learner's state. Call the returned func to unlock.
func (f *Factory) Lock(learnerID string) func() {
	f.mu.Lock()
	l, ok := f.locks[learnerID]
	if !ok {
		l = &learnerLock{}
		f.locks[learnerID] = l
	}
	l.refs++
	f.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		f.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(f.locks, learnerID)
		}
		f.mu.Unlock()
	}
}

// Clock returns the factory clock.
func (f *Factory) Clock() timeutil.Clock { return f.clock }

// Catalog returns the shared catalog cache.
func (f *Factory) Catalog() *query.CatalogCache { return f.catalog }

package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/learnpath/academy-hub/config"
	"github.com/learnpath/academy-hub/internal/application/auth"
	"github.com/learnpath/academy-hub/internal/application/command"
	"github.com/learnpath/academy-hub/internal/application/eventhandler"
	"github.com/learnpath/academy-hub/internal/application/query"
	"github.com/learnpath/academy-hub/internal/application/workspace"
	"github.com/learnpath/academy-hub/internal/domain/admin"
	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/external/catalogapi"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/internal/infrastructure/messaging"
	"github.com/learnpath/academy-hub/internal/infrastructure/persistence/catalogfile"
	"github.com/learnpath/academy-hub/internal/infrastructure/persistence/postgres"
	"github.com/learnpath/academy-hub/internal/infrastructure/persistence/redis"
	"github.com/learnpath/academy-hub/internal/infrastructure/persistence/sqlite"
	"github.com/learnpath/academy-hub/internal/infrastructure/scheduler/jobs"
	"github.com/learnpath/academy-hub/internal/interface/http/handlers"
	"github.com/learnpath/academy-hub/pkg/logger"
	"github.com/learnpath/academy-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STACK
// The process-wide object graph, built once per command from Config.
// ══════════════════════════════════════════════════════════════════════════════

type stack struct {
	clock timeutil.Clock

	pg    *postgres.Connection
	redis *goredis.Client

	store  kv.Store
	purger jobs.Purger

	source       course.Source
	sharedSource *redis.CatalogCache
	catalogAPI   *catalogapi.Client
	catalog      *query.CatalogCache

	workspaces *workspace.Factory
	bus        *messaging.InMemoryEventBus

	completeLesson   *command.CompleteLessonHandler
	recordCommission *command.RecordCommissionHandler

	health  *handlers.CompositeHealthChecker
	closers []func()
}

func newStack(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *stack, err error) {
	s := &stack{
		clock:  timeutil.SystemClock{},
		health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. Connections
	// ─────────────────────────────────────────────────────────────────────────

	if cfg.Storage.Driver == config.StoragePostgres || cfg.Catalog.Source == config.CatalogPostgres {
		if err := s.connectPostgres(ctx, cfg, log); err != nil {
			return nil, err
		}
	}
	if cfg.Storage.Driver == config.StorageRedis || cfg.Redis.SharedCatalog {
		if err := s.connectRedis(ctx, cfg, log); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Learner state store
	// ─────────────────────────────────────────────────────────────────────────

	if err := s.openStore(ctx, cfg, log); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Course catalog
	// ─────────────────────────────────────────────────────────────────────────

	s.source = s.catalogSource(cfg, log)
	if cfg.Redis.SharedCatalog && s.redis != nil {
		s.sharedSource = redis.NewCatalogCache(
			redis.NewCache(s.redis, cfg.Redis.KeyPrefix),
			s.source, cfg.Catalog.Source, cfg.Redis.SharedCatalogTTL, log,
		)
		s.source = s.sharedSource
	}
	s.catalog = query.NewCatalogCache(s.source, s.clock, cfg.Progress.CatalogTTL, log)

	settings, err := config.LoadCourseSettings(cfg.Catalog.CourseConfigFile)
	if err != nil {
		return nil, err
	}
	s.workspaces = workspace.NewFactory(s.store, s.catalog, s.clock, workspace.Config{
		Location:     cfg.App.Location,
		FastStatsTTL: cfg.Progress.FastStatsTTL,
		Continue:     continueOptions(settings),
	}, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Events and commands
	// ─────────────────────────────────────────────────────────────────────────

	s.bus = newEventBus(log)
	s.closers = append(s.closers, func() { _ = s.bus.Close() })

	onCompleted := eventhandler.NewOnLessonCompletedHandler(s.workspaces, s.bus, eventhandler.LessonCompletedConfig{
		Streaks:      gate(cfg.Features, config.FeatureGamificationStreaks),
		Achievements: gate(cfg.Features, config.FeatureGamificationAchievements),
	}, log)
	if err := s.bus.Subscribe(shared.EventLessonCompleted, onCompleted.Handle); err != nil {
		return nil, fmt.Errorf("subscribe lesson completed: %w", err)
	}
	if err := s.bus.SubscribeAll(eventhandler.NewAuditLogger(log).Handle); err != nil {
		return nil, fmt.Errorf("subscribe audit: %w", err)
	}

	s.completeLesson = command.NewCompleteLessonHandler(s.workspaces, s.bus, log)
	s.recordCommission = command.NewRecordCommissionHandler(s.workspaces, s.bus, log)

	return s, nil
}

// newEventBus builds the synchronous bus. Handler errors and recovered panics
// are logged through log.
func newEventBus(log *logger.Logger) *messaging.InMemoryEventBus {
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	return messaging.NewInMemoryEventBus(busCfg)
}

func (s *stack) connectPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return err
	}
	s.pg = conn
	s.closers = append(s.closers, conn.Close)
	s.health.AddCheck("postgres", handlers.NewPingCheck(conn))
	log.Info("connected to PostgreSQL")

	applied, err := postgres.NewMigrator(conn).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		log.Info("applied migrations", logger.Int("count", applied))
	}
	return nil
}

func (s *stack) connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout
	redisCfg.KeyPrefix = cfg.Redis.KeyPrefix

	client, err := redis.NewClient(ctx, redisCfg)
	if err != nil {
		return err
	}
	s.redis = client
	s.closers = append(s.closers, func() { _ = client.Close() })
	s.health.AddCheck("redis", handlers.NewPingCheck(redis.NewCache(client, cfg.Redis.KeyPrefix)))
	log.Info("connected to Redis", logger.String("addr", redisCfg.Addr()))
	return nil
}

func (s *stack) openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		s.store = kv.NewMemory()
	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		s.store, s.purger = db, db
		s.closers = append(s.closers, func() { _ = db.Close() })
		s.health.AddCheck("sqlite", handlers.NewPingCheck(db))
	case config.StorageRedis:
		s.store = redis.NewKVStore(s.redis, cfg.Redis.KeyPrefix+redis.PrefixKV)
	case config.StoragePostgres:
		pgStore := postgres.NewKVStore(s.pg)
		s.store, s.purger = pgStore, pgStore
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	log.Info("learner state store ready", logger.String("driver", cfg.Storage.Driver))
	return nil
}

func (s *stack) catalogSource(cfg *config.Config, log *logger.Logger) course.Source {
	switch cfg.Catalog.Source {
	case config.CatalogHTTP:
		s.catalogAPI = catalogapi.NewClient(catalogapi.ClientConfig{
			BaseURL:                 cfg.Catalog.BaseURL,
			Timeout:                 cfg.Catalog.RequestTimeout,
			MaxRetries:              cfg.Catalog.MaxRetries,
			CircuitBreakerThreshold: cfg.Catalog.CircuitBreakerThreshold,
			CircuitBreakerTimeout:   cfg.Catalog.CircuitBreakerTimeout,
			Logger:                  log,
		})
		s.health.AddCheck("catalog_api", handlers.NewBreakerCheck("catalog_api", s.catalogAPI))
		return s.catalogAPI
	case config.CatalogPostgres:
		return postgres.NewCatalogRepository(s.pg)
	default:
		return catalogfile.NewSource(cfg.Catalog.File)
	}
}

// credentials picks the admin table: PostgreSQL when connected, the YAML file otherwise.
func (s *stack) credentials(cfg *config.Config) (auth.CredentialStore, error) {
	if s.pg != nil {
		return postgres.NewAdminUserRepository(s.pg), nil
	}
	creds, err := auth.LoadStaticCredentials(cfg.Session.AdminUsersFile)
	if err != nil {
		return nil, err
	}
	return creds, nil
}

func (s *stack) authService(cfg *config.Config, log *logger.Logger) (*auth.Service, error) {
	creds, err := s.credentials(cfg)
	if err != nil {
		return nil, err
	}
	return auth.NewService(creds, s.store, s.clock, auth.Options{
		Policy: admin.Policy{TTL: cfg.Session.TTL, InactivityLimit: cfg.Session.InactivityLimit},
		Secret: []byte(cfg.Session.JWTSecret),
		Issuer: cfg.Session.Issuer,
	}, log, auth.WithPublisher(s.bus))
}

// Close releases connections in reverse order of acquisition.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func gate(ff *config.FeatureFlags, feature string) func(string) bool {
	return func(learnerID string) bool { return ff.EnabledFor(feature, learnerID) }
}

func continueOptions(s config.CourseSettings) query.ContinueOptions {
	return query.ContinueOptions{
		Priority:   s.Priority(),
		NewUser:    query.ContinueCopy{Headline: s.Copy.NewUser.Headline, CTA: s.Copy.NewUser.CTA},
		InProgress: query.ContinueCopy{Headline: s.Copy.InProgress.Headline, CTA: s.Copy.InProgress.CTA},
		Completed:  query.ContinueCopy{Headline: s.Copy.Completed.Headline, CTA: s.Copy.Completed.CTA},
	}
}

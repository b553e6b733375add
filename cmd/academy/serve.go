package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/learnpath/academy-hub/config"
	"github.com/learnpath/academy-hub/internal/infrastructure/messaging"
	"github.com/learnpath/academy-hub/internal/infrastructure/scheduler"
	"github.com/learnpath/academy-hub/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/learnpath/academy-hub/internal/interface/http"
	"github.com/learnpath/academy-hub/pkg/logger"
)

var (
	apiKeys        []string
	purgeInterval  time.Duration
	warmupInterval time.Duration
	disableJobs    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringSliceVar(&apiKeys, "api-key", nil, "API keys accepted on learner write routes (none leaves them open)")
	serveCmd.Flags().DurationVar(&purgeInterval, "purge-interval", 15*time.Minute, "how often expired KV entries are deleted")
	serveCmd.Flags().DurationVar(&warmupInterval, "catalog-warmup-interval", 5*time.Minute, "how often the catalog is refetched and validated")
	serveCmd.Flags().BoolVar(&disableJobs, "no-jobs", false, "run the API without background jobs")
}

func serve(ctx context.Context) error {
	log.Info("starting Academy Hub",
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("catalog", cfg.Catalog.Source),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 1. Object graph
	// ─────────────────────────────────────────────────────────────────────────

	st, err := newStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	authSvc, err := st.authService(cfg, log)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. HTTP server
	// ─────────────────────────────────────────────────────────────────────────

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.CORSOrigins
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimit
	httpCfg.APIKeys = apiKeys
	httpCfg.CookieName = cfg.Session.CookieName
	httpCfg.CookieSecure = cfg.HTTP.CookieSecure
	httpCfg.Version = cfg.App.Version
	if cfg.HTTP.CSRFKey != "" {
		httpCfg.CSRFKey = []byte(cfg.HTTP.CSRFKey)
	}

	var sched *scheduler.Scheduler

	server := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		Workspaces:       st.workspaces,
		Catalog:          st.catalog,
		CompleteLesson:   st.completeLesson,
		RecordCommission: st.recordCommission,
		Auth:             authSvc,
		FastStats:        gate(cfg.Features, config.FeatureProgressFastStats),
		Commission:       gate(cfg.Features, config.FeatureGamificationCommission),
		Runtime:          func() map[string]any { return runtimeStats(st.bus, sched) },
		HealthChecker:    st.health,
		Logger:           log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Background jobs
	// ─────────────────────────────────────────────────────────────────────────

	if !disableJobs {
		sched, err = newServerScheduler(st)
		if err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Run until signalled
	// ─────────────────────────────────────────────────────────────────────────

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	if sched != nil {
		g.Go(func() error { return sched.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if sched != nil && sched.IsRunning() {
			if err := sched.Stop(); err != nil {
				log.Warn("scheduler stop failed", logger.Err(err))
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Academy Hub stopped")
	return nil
}

// runtimeStats snapshots the event bus and scheduler counters. sched is nil
// when jobs are disabled.
func runtimeStats(bus *messaging.InMemoryEventBus, sched *scheduler.Scheduler) map[string]any {
	out := make(map[string]any, 2)
	if m := bus.Metrics(); m != nil {
		out["events"] = m.Snapshot()
	}
	if sched != nil {
		out["jobs"] = sched.GetMetrics().Snapshot()
	}
	return out
}

func newServerScheduler(st *stack) (*scheduler.Scheduler, error) {
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = cfg.App.Location
	sched := scheduler.NewScheduler(schedCfg)
	sched.OnJobError(func(name string, err error) {
		log.Warn("background job failed", logger.String("job", name), logger.Err(err))
	})

	if st.purger != nil {
		if err := sched.Register(jobs.NewPurgeExpiredJob(st.purger, 0, log), purgeInterval); err != nil {
			return nil, err
		}
	}

	var shared jobs.Invalidator
	if st.sharedSource != nil {
		shared = st.sharedSource
	}
	if err := sched.Register(jobs.NewCatalogWarmupJob(st.source, shared, log), warmupInterval); err != nil {
		return nil, err
	}
	return sched, nil
}

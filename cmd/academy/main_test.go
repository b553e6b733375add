package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/learnpath/academy-hub/config"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/messaging"
	"github.com/learnpath/academy-hub/internal/infrastructure/scheduler"
	"github.com/learnpath/academy-hub/pkg/logger"
)

const testCatalog = `
courses:
  - id: bb
    title: Business Blueprint
    track: foundation
    modules:
      - id: bb-1
        title: Basics
        lessons:
          - { id: bb-1-1, title: Welcome }
          - { id: bb-1-2, title: Offers }
  - id: tm
    title: Traffic Mastery
    track: advanced
    modules:
      - id: tm-1
        title: Ads
        lessons:
          - { id: tm-1-1, title: Budgets }
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func testEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0o600))

	t.Setenv("STORAGE_DRIVER", config.StorageSQLite)
	t.Setenv("STORAGE_SQLITE_PATH", filepath.Join(dir, "academy.db"))
	t.Setenv("CATALOG_SOURCE", config.CatalogYAML)
	t.Setenv("CATALOG_FILE", catalogPath)
	t.Setenv("COURSE_CONFIG", filepath.Join(dir, "absent.yaml"))
	t.Setenv("LOG_LEVEL", "error")
}

func TestLearnerCommands(t *testing.T) {
	testEnv(t)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(execute(t, "learner", "complete", "learner-1", "bb-1-1")), &first))
	assert.Equal(t, false, first["alreadyCompleted"])
	assert.Equal(t, "bb", first["courseId"])

	// State survives a new process because it lives in the SQLite file.
	var again map[string]any
	require.NoError(t, json.Unmarshal([]byte(execute(t, "learner", "complete", "learner-1", "bb-1-1")), &again))
	assert.Equal(t, true, again["alreadyCompleted"])

	var progress struct {
		CompletedLessons []string `json:"completedLessons"`
		TotalLessons     int      `json:"totalLessons"`
		TotalXP          int      `json:"totalXP"`
	}
	require.NoError(t, json.Unmarshal([]byte(execute(t, "learner", "progress", "learner-1")), &progress))
	assert.Equal(t, []string{"bb-1-1"}, progress.CompletedLessons)
	assert.Equal(t, 3, progress.TotalLessons)
	assert.Positive(t, progress.TotalXP)

	var target map[string]any
	require.NoError(t, json.Unmarshal([]byte(execute(t, "learner", "continue", "learner-1")), &target))
	assert.Equal(t, "bb-1-2", target["lessonId"])
	assert.Equal(t, false, target["isNewUser"])
}

func TestHashPassword(t *testing.T) {
	out := execute(t, "hash-password", "s3cret")
	hash := bytes.TrimSpace([]byte(out))
	assert.NoError(t, bcrypt.CompareHashAndPassword(hash, []byte("s3cret")))
}

func TestContinueOptions(t *testing.T) {
	opts := continueOptions(config.CourseSettings{
		Primary:   "bb",
		Fallbacks: []string{"tm", "bb"},
		Copy: config.ContinueCopy{
			NewUser: config.CopyBlock{Headline: "Start", CTA: "Go"},
		},
	})
	assert.Equal(t, []string{"bb", "tm"}, opts.Priority)
	assert.Equal(t, "Go", opts.NewUser.CTA)
}

func TestGate(t *testing.T) {
	ff := config.LoadFeatureFlags()
	require.NoError(t, ff.DisableFeature(config.FeatureGamificationStreaks))
	ff.SetLearnerOverride("vip", config.FeatureGamificationStreaks, true)

	streaks := gate(ff, config.FeatureGamificationStreaks)
	assert.False(t, streaks("someone"))
	assert.True(t, streaks("vip"))
}

func TestEventBusLogsHandlerFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bus := newEventBus(logger.NewFromZap(zap.New(core)))
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventLessonCompleted, func(context.Context, shared.Event) error {
		return errors.New("streak store down")
	}))
	require.NoError(t, bus.Subscribe(shared.EventLessonCompleted, func(context.Context, shared.Event) error {
		panic("handler bug")
	}))

	ev := shared.NewLessonCompletedEvent("learner-1", "bb", "bb-1-1", time.Now())
	require.NoError(t, bus.Publish(context.Background(), ev))
	assert.Equal(t, 2, logs.FilterMessage("handler error").Len())
}

func TestRuntimeStats(t *testing.T) {
	bus := newEventBus(logger.Nop())
	defer bus.Close()
	require.NoError(t, bus.Publish(context.Background(), shared.NewLessonCompletedEvent("learner-1", "bb", "bb-1-1", time.Now())))

	stats := runtimeStats(bus, nil)
	events, ok := stats["events"].(messaging.EventBusMetricsSnapshot)
	require.True(t, ok)
	assert.EqualValues(t, 1, events.TotalPublished)
	assert.NotContains(t, stats, "jobs")

	sched := scheduler.NewScheduler(scheduler.DefaultSchedulerConfig())
	stats = runtimeStats(bus, sched)
	assert.IsType(t, scheduler.MetricsSnapshot{}, stats["jobs"])
}

func TestFeaturesCommand(t *testing.T) {
	testEnv(t)
	defer func() { disabledFeatures = nil }()

	out := execute(t, "features", "--disable-feature", config.FeatureGamificationStreaks)
	assert.Contains(t, out, "FEATURE")
	assert.Regexp(t, `gamification\.streaks\s+false\s+0%`, out)
	assert.Regexp(t, `progress\.fast_stats\s+true\s+100%`, out)
}

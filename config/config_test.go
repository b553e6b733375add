package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8*time.Hour, cfg.Session.TTL)
	assert.Equal(t, time.Hour, cfg.Session.InactivityLimit)
	assert.Equal(t, 5*time.Minute, cfg.Session.PollInterval)
	assert.Equal(t, time.Second, cfg.Progress.CatalogTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Progress.FastStatsTTL)
	assert.Equal(t, 2, cfg.Navigation.Retries)
	assert.Equal(t, 100*time.Millisecond, cfg.Navigation.Delay)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, time.UTC, cfg.App.Location)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STORAGE_DRIVER=memory\nSESSION_TTL=24h\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("STORAGE_DRIVER")
		os.Unsetenv("SESSION_TTL")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
}

func TestValidate_CollectsErrors(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "floppy")
	t.Setenv("CATALOG_SOURCE", "http")
	t.Setenv("CATALOG_BASE_URL", "")
	t.Setenv("HTTP_CSRF_KEY", "short")

	_, err := Load(filepath.Join(t.TempDir(), "none"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown STORAGE_DRIVER "floppy"`)
	assert.Contains(t, err.Error(), "CATALOG_BASE_URL is required")
	assert.Contains(t, err.Error(), "HTTP_CSRF_KEY must be exactly 32 bytes")
}

func TestValidate_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SESSION_JWT_SECRET", "too-short")

	_, err := Load(filepath.Join(t.TempDir(), "none"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_JWT_SECRET")
}

func TestGetEnvStringSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", " a, b ,,c ")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvStringSlice("TEST_SLICE", nil))
	assert.Equal(t, []string{"x"}, getEnvStringSlice("TEST_SLICE_UNSET", []string{"x"}))
}

func TestCourseSettings(t *testing.T) {
	t.Run("defaults when file missing", func(t *testing.T) {
		s, err := LoadCourseSettings(filepath.Join(t.TempDir(), "courses.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "business-blueprint", s.Primary)
	})

	t.Run("priority dedupes", func(t *testing.T) {
		s, err := ParseCourseSettings([]byte(`
primary: a
fallbacks: [b, a, "", c]
copy:
  new_user:
    headline: Welcome
`))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, s.Priority())
		assert.Equal(t, "Welcome", s.Copy.NewUser.Headline)
		assert.Equal(t, "Start Learning", s.Copy.NewUser.CTA)
	})

	t.Run("rejects empty priority", func(t *testing.T) {
		_, err := ParseCourseSettings([]byte("primary: \"\"\nfallbacks: []\n"))
		assert.Error(t, err)
	})
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_GAMIFICATION_COMMISSION", "true")
	t.Setenv("FEATURE_NAVIGATION_PRELOAD", "false")
	ff := LoadFeatureFlags()

	assert.True(t, ff.EnabledFor(FeatureGamificationCommission, "learner-1"))
	assert.False(t, ff.EnabledFor(FeatureNavigationPreload, "learner-1"))
	assert.True(t, ff.IsEnabled(FeatureNavigationPreload, &FeatureContext{IsAdmin: true}))

	ff.SetLearnerOverride("learner-2", FeatureGamificationStreaks, false)
	assert.False(t, ff.EnabledFor(FeatureGamificationStreaks, "learner-2"))
	assert.True(t, ff.EnabledFor(FeatureGamificationStreaks, "learner-3"))

	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureGamificationStreaks, 101), ErrInvalidRolloutPercent)

	require.NoError(t, ff.SetRolloutPercent(FeatureGamificationAchievements, 50))
	a := ff.EnabledFor(FeatureGamificationAchievements, "stable-learner")
	assert.Equal(t, a, ff.EnabledFor(FeatureGamificationAchievements, "stable-learner"))

	var nilFlags *FeatureFlags
	assert.True(t, nilFlags.EnabledFor(FeatureGamificationStreaks, "x"))
	assert.False(t, nilFlags.EnabledFor(FeatureGamificationCommission, "x"))
}

func TestFeatureFlags_LearnerOverridesFromEnv(t *testing.T) {
	t.Setenv("FEATURE_LEARNER_OVERRIDES", "vip-1:gamification.commission=true, quiet-1:gamification.streaks=false,broken,x:y=maybe")
	ff := LoadFeatureFlags()

	assert.True(t, ff.EnabledFor(FeatureGamificationCommission, "vip-1"))
	assert.False(t, ff.EnabledFor(FeatureGamificationCommission, "learner-1"))
	assert.False(t, ff.EnabledFor(FeatureGamificationStreaks, "quiet-1"))
	assert.True(t, ff.EnabledFor(FeatureGamificationStreaks, "learner-1"))

	snap := ff.Snapshot()
	assert.Len(t, snap, 6)
	assert.False(t, snap[FeatureGamificationCommission].Enabled)
}

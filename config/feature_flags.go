package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles with gradual rollout by learner.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// learnerID -> feature -> enabled
	learnerOverrides map[string]map[string]bool

	now func() time.Time
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent is 0-100. Learners are bucketed by a hash of their ID.
	RolloutPercent int

	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	LearnerID string
	IsAdmin   bool
}

// Predefined feature flag names.
const (
	// === Gamification ===
	FeatureGamificationStreaks      = "gamification.streaks"
	FeatureGamificationAchievements = "gamification.achievements"
	FeatureGamificationCommission   = "gamification.commission" // earnings milestones

	// === Progress ===
	FeatureProgressFastStats = "progress.fast_stats" // serve /stats from the 500ms cache

	// === Navigation ===
	FeatureNavigationPreload = "navigation.preload"

	// === Admin ===
	FeatureAdminSessionPolling = "admin.session_polling"
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		learnerOverrides: make(map[string]map[string]bool),
		now:              time.Now,
	}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{Name: FeatureGamificationStreaks, Description: "Daily learning streaks", Enabled: true, RolloutPercent: 100},
		{Name: FeatureGamificationAchievements, Description: "Achievement log on lesson completion", Enabled: true, RolloutPercent: 100},
		{Name: FeatureGamificationCommission, Description: "Affiliate earnings milestones", Enabled: false, RolloutPercent: 0},
		{Name: FeatureProgressFastStats, Description: "Short-lived stats cache", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNavigationPreload, Description: "Preload continue target before navigating", Enabled: true, RolloutPercent: 100},
		{Name: FeatureAdminSessionPolling, Description: "Periodic admin session revalidation", Enabled: true, RolloutPercent: 100},
	}
	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment applies FEATURE_<NAME>=true|false|<percent> and
// FEATURE_LEARNER_OVERRIDES.
// Example: FEATURE_GAMIFICATION_COMMISSION=25
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
	ff.loadLearnerOverrides(os.Getenv("FEATURE_LEARNER_OVERRIDES"))
}

// loadLearnerOverrides applies a comma-separated list of learner:feature=bool.
// Example: FEATURE_LEARNER_OVERRIDES=vip-1:gamification.commission=true
// Malformed entries are skipped.
func (ff *FeatureFlags) loadLearnerOverrides(spec string) {
	for _, entry := range strings.Split(spec, ",") {
		learner, rest, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || learner == "" {
			continue
		}
		name, val, ok := strings.Cut(rest, "=")
		if !ok {
			continue
		}
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			continue
		}
		ff.SetLearnerOverride(learner, name, enabled)
	}
}

// "gamification.streaks" -> "FEATURE_GAMIFICATION_STREAKS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
// A nil FeatureFlags enables everything that is on by default.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	if ff == nil {
		return featureName != FeatureGamificationCommission
	}

	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.LearnerID != "" {
		if overrides, ok := ff.learnerOverrides[ctx.LearnerID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}
	if ctx != nil && ctx.IsAdmin {
		return true
	}
	if !feature.Enabled {
		return false
	}

	now := ff.now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.LearnerID != "" {
		return isInRollout(ctx.LearnerID, featureName, feature.RolloutPercent)
	}
	return feature.RolloutPercent > 0
}

// EnabledFor is IsEnabled for a learner.
func (ff *FeatureFlags) EnabledFor(featureName, learnerID string) bool {
	return ff.IsEnabled(featureName, &FeatureContext{LearnerID: learnerID})
}

// isInRollout hashes learner+feature so a learner stays in the same bucket.
func isInRollout(learnerID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(learnerID))
	return int(h.Sum32()%100) < percent
}

// SetLearnerOverride forces a feature on or off for one learner.
func (ff *FeatureFlags) SetLearnerOverride(learnerID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.learnerOverrides[learnerID] == nil {
		ff.learnerOverrides[learnerID] = make(map[string]bool)
	}
	ff.learnerOverrides[learnerID][featureName] = enabled
}

// SetRolloutPercent sets the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// DisableFeature fully disables a feature.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// Snapshot returns a copy of all features, keyed by name.
func (ff *FeatureFlags) Snapshot() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make(map[string]Feature, len(ff.features))
	for name, f := range ff.features {
		out[name] = *f
	}
	return out
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/learnpath/academy-hub/config"
	"github.com/learnpath/academy-hub/internal/application/command"
	"github.com/learnpath/academy-hub/internal/application/guard"
	"github.com/learnpath/academy-hub/internal/application/workspace"
	"github.com/learnpath/academy-hub/internal/infrastructure/external/webrouter"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER COMMANDS
// Operator access to a learner's workspace without going through HTTP.
// ══════════════════════════════════════════════════════════════════════════════

var learnerCmd = &cobra.Command{
	Use:   "learner",
	Short: "Inspect and update a learner's progress",
}

var learnerProgressCmd = &cobra.Command{
	Use:   "progress <learner-id>",
	Short: "Print unified progress: XP, levels, courses and streak",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), args[0], func(ctx context.Context, ws *workspace.Workspace, _ *stack) error {
			return printJSON(cmd.OutOrStdout(), ws.Progress.GetUnifiedProgress(ctx))
		})
	},
}

var learnerStatsCmd = &cobra.Command{
	Use:   "stats <learner-id>",
	Short: "Print the dashboard stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), args[0], func(ctx context.Context, ws *workspace.Workspace, _ *stack) error {
			if cfg.Features.EnabledFor(config.FeatureProgressFastStats, args[0]) {
				return printJSON(cmd.OutOrStdout(), ws.Progress.GetFastStats(ctx))
			}
			return printJSON(cmd.OutOrStdout(), ws.Progress.GetUnifiedProgress(ctx).Stats())
		})
	},
}

var learnerContinueCmd = &cobra.Command{
	Use:   "continue <learner-id>",
	Short: "Print where the learner should continue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), args[0], func(ctx context.Context, ws *workspace.Workspace, _ *stack) error {
			target := ws.Continue.GetContinueData(ctx)
			if !openTarget || target == nil {
				return printJSON(cmd.OutOrStdout(), target)
			}
			router := webrouter.New(webrouter.Config{BaseURL: cfg.Navigation.SiteURL, Logger: log})
			if cfg.Navigation.PreloadOnContinue && cfg.Features.EnabledFor(config.FeatureNavigationPreload, args[0]) {
				guard.Preload(ctx, router, target.Href, log)
			}
			return report(cmd, router, navigate(ctx, router, target.Href))
		})
	},
}

var learnerAchievementsCmd = &cobra.Command{
	Use:   "achievements <learner-id>",
	Short: "Print the most recent achievements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), args[0], func(ctx context.Context, ws *workspace.Workspace, _ *stack) error {
			views, err := ws.Achievements.GetRecentAchievements(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), views)
		})
	},
}

var learnerCompleteCmd = &cobra.Command{
	Use:   "complete <learner-id> <lesson-id>",
	Short: "Mark a lesson complete",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), args[0], func(ctx context.Context, _ *workspace.Workspace, st *stack) error {
			res, err := st.completeLesson.Handle(ctx, command.CompleteLessonCommand{
				LearnerID:     args[0],
				LessonID:      args[1],
				CorrelationID: uuid.NewString(),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var learnerCommissionCmd = &cobra.Command{
	Use:   "commission <learner-id> <amount-cents>",
	Short: "Record commission earnings",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Features.EnabledFor(config.FeatureGamificationCommission, args[0]) {
			return fmt.Errorf("feature %s is disabled for %s", config.FeatureGamificationCommission, args[0])
		}
		cents, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return err
		}
		return withWorkspace(cmd.Context(), args[0], func(ctx context.Context, _ *workspace.Workspace, st *stack) error {
			res, err := st.recordCommission.Handle(ctx, command.RecordCommissionCommand{
				LearnerID:   args[0],
				AmountCents: cents,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var openTarget bool

func init() {
	learnerContinueCmd.Flags().BoolVar(&openTarget, "open", false, "navigate the site to the target instead of printing it")

	learnerCmd.AddCommand(learnerProgressCmd)
	learnerCmd.AddCommand(learnerStatsCmd)
	learnerCmd.AddCommand(learnerContinueCmd)
	learnerCmd.AddCommand(learnerAchievementsCmd)
	learnerCmd.AddCommand(learnerCompleteCmd)
	learnerCmd.AddCommand(learnerCommissionCmd)
}

func withWorkspace(ctx context.Context, learnerID string, fn func(context.Context, *workspace.Workspace, *stack) error) error {
	st, err := newStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ws, err := st.workspaces.For(learnerID)
	if err != nil {
		return err
	}
	return fn(ctx, ws, st)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

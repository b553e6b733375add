package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learnpath/academy-hub/config"
	"github.com/learnpath/academy-hub/pkg/logger"
)

var (
	envFiles         []string
	logLevel         string
	logFormat        string
	disabledFeatures []string

	// Populated by the root PersistentPreRunE.
	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "academy",
	Short:         "Academy Hub: learner progress, streaks and admin sessions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(envFiles...)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Observability.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Observability.LogFormat = logFormat
		}
		for _, name := range disabledFeatures {
			if err := loaded.Features.DisableFeature(name); err != nil {
				return fmt.Errorf("--disable-feature %s: %w", name, err)
			}
		}
		cfg = loaded
		log = logger.New(logger.Options{
			Level:     logger.ParseLevel(cfg.Observability.LogLevel),
			Format:    cfg.Observability.LogFormat,
			AddCaller: cfg.App.Debug,
		}).With(
			logger.String("app", cfg.App.Name),
			logger.String("env", string(cfg.App.Environment)),
		)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, ".env files to load before reading the environment (default .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override LOG_FORMAT (json, console)")
	rootCmd.PersistentFlags().StringSliceVar(&disabledFeatures, "disable-feature", nil, "turn a feature flag off for this run")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(learnerCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(featuresCmd)
}

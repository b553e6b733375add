package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/learnpath/academy-hub/internal/application/auth"
	"github.com/learnpath/academy-hub/internal/infrastructure/persistence/catalogfile"
	"github.com/learnpath/academy-hub/internal/infrastructure/persistence/postgres"
	"github.com/learnpath/academy-hub/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPostgres(cmd.Context(), func(ctx context.Context, conn *postgres.Connection) error {
			applied, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				return err
			}
			log.Info("migrations applied", logger.Int("count", applied))
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPostgres(cmd.Context(), func(ctx context.Context, conn *postgres.Connection) error {
			return postgres.NewMigrator(conn).Rollback(ctx)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPostgres(cmd.Context(), func(ctx context.Context, conn *postgres.Connection) error {
			migrations, err := postgres.NewMigrator(conn).Status(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			for _, m := range migrations {
				applied := "-"
				if m.IsApplied {
					applied = m.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, applied)
			}
			return w.Flush()
		})
	},
}

var migrateSeedCatalogCmd = &cobra.Command{
	Use:   "seed-catalog [file]",
	Short: "Replace the stored catalog with a YAML catalog file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Catalog.File
		if len(args) == 1 {
			path = args[0]
		}
		return withPostgres(cmd.Context(), func(ctx context.Context, conn *postgres.Connection) error {
			if _, err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				return err
			}
			catalog, err := catalogfile.NewSource(path).FetchCourses(ctx)
			if err != nil {
				return err
			}
			if err := postgres.NewCatalogRepository(conn).ReplaceAll(ctx, catalog); err != nil {
				return err
			}
			log.Info("catalog seeded",
				logger.String("file", path),
				logger.Int("courses", len(catalog)),
				logger.Int("lessons", catalog.LessonCount()),
			)
			return nil
		})
	},
}

var migrateSeedAdminsCmd = &cobra.Command{
	Use:   "seed-admins [file]",
	Short: "Upsert the admin users of a YAML credential file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Session.AdminUsersFile
		if len(args) == 1 {
			path = args[0]
		}
		creds, err := auth.LoadStaticCredentials(path)
		if err != nil {
			return err
		}
		if creds.Len() == 0 {
			return fmt.Errorf("no admins in %s", path)
		}
		return withPostgres(cmd.Context(), func(ctx context.Context, conn *postgres.Connection) error {
			if _, err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				return err
			}
			repo := postgres.NewAdminUserRepository(conn)
			for _, c := range creds.All() {
				if err := repo.Upsert(ctx, c); err != nil {
					return fmt.Errorf("upsert %s: %w", c.Username, err)
				}
			}
			log.Info("admins seeded", logger.String("file", path), logger.Int("count", creds.Len()))
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateSeedCatalogCmd)
	migrateCmd.AddCommand(migrateSeedAdminsCmd)
}

// withPostgres connects using DATABASE_URL and closes the pool afterwards.
func withPostgres(ctx context.Context, fn func(context.Context, *postgres.Connection) error) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, conn)
}

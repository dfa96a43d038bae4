package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/frahmantamala/rbac-service/db/migrations"
	"github.com/frahmantamala/rbac-service/pkg/logger"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "run the sql migrations for the configured database",
	}
	migrateRollback bool
	migrateDir      string
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
	migrateCmd.PersistentFlags().StringVarP(&migrateDir, "dir", "d", "", "read migrations from this directory instead of the embedded set")
}

func gooseDialect(driver string) string {
	if driver == "sqlite" {
		return "sqlite3"
	}
	return "postgres"
}

func runMigration(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	lg := logger.Configure(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	_, reader, err := initDB(cfg.Database, lg)
	if err != nil {
		return err
	}
	defer reader.Close()

	dir := migrations.Dir(cfg.Database.Driver)
	if migrateDir != "" {
		goose.SetBaseFS(os.DirFS(migrateDir))
		dir = "."
	} else {
		goose.SetBaseFS(migrations.FS)
	}
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect(gooseDialect(cfg.Database.Driver)); err != nil {
		return fmt.Errorf("goose: %w", err)
	}

	if migrateRollback {
		if err := goose.DownContext(ctx, reader.DB, dir); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		lg.Info("rolled back latest migration", "driver", cfg.Database.Driver)
		return nil
	}

	if err := goose.UpContext(ctx, reader.DB, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	lg.Info("migrations applied", "driver", cfg.Database.Driver)
	return nil
}

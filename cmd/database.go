package cmd

import (
	"fmt"
	"log/slog"

	"github.com/frahmantamala/rbac-service/internal"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sqlxDriverName maps the configured driver to the database/sql name sqlx
// uses for placeholder rebinding.
func sqlxDriverName(driver string) string {
	if driver == "sqlite" {
		return "sqlite3"
	}
	return "pgx"
}

// initDB opens the gorm handle used for writes and a sqlx handle sharing the
// same pool for read queries.
func initDB(cfg internal.DatabaseConfig, lg *slog.Logger) (*gorm.DB, *sqlx.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.GetDSN())
	default:
		dialector = postgres.Open(cfg.GetDSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	if cfg.Driver == "sqlite" {
		// a single connection keeps in-memory databases shared
		sqlDB.SetMaxOpenConns(1)
	}

	// verify connection; close underlying *sql.DB on failure
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	lg.Info("database connected", "driver", cfg.Driver, "max_open_conns", cfg.MaxOpenConns)
	return db, sqlx.NewDb(sqlDB, sqlxDriverName(cfg.Driver)), nil
}

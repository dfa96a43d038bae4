package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/events"
	"github.com/frahmantamala/rbac-service/internal/credential"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	rbacPostgres "github.com/frahmantamala/rbac-service/internal/rbac/postgres"
	"github.com/frahmantamala/rbac-service/internal/user"
	userPostgres "github.com/frahmantamala/rbac-service/internal/user/postgres"
	"github.com/frahmantamala/rbac-service/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const demoPassword = "password123"

type demoAccount struct {
	Name  string
	Email string
	Role  string
}

var demoAccounts = []demoAccount{
	{Name: "Admin", Email: "admin@example.com", Role: "admin"},
	{Name: "Moderator", Email: "moderator@example.com", Role: "moderator"},
	{Name: "Regular User", Email: "user@example.com", Role: "user"},
}

// seedTables lists the tables cleared by --clear, children first.
var seedTables = []string{"posts", "role_permissions", "user_roles", "users", "permissions", "roles"}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with the default roles and demo accounts",
	Long:  `Create the default permission catalog, the admin/moderator/user roles and one demo account per role.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		lg := logger.Configure(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

		db, reader, err := initDB(cfg.Database, lg)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer reader.Close()

		hasher, err := credential.NewHasher(cfg.Security.BCryptCost, cfg.Security.HashConcurrency)
		if err != nil {
			return err
		}

		if clearData {
			if err := clearTables(db); err != nil {
				return err
			}
			lg.Info("cleared existing data")
		}

		return seed(context.Background(), db, hasher, cfg.Security.DefaultRole, lg)
	},
}

func clearTables(db *gorm.DB) error {
	for _, table := range seedTables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// seed is idempotent: the catalog is ensured and existing accounts are left
// alone.
func seed(ctx context.Context, db *gorm.DB, hasher credential.HasherAPI, defaultRole string, lg *slog.Logger) error {
	bus := events.NewEventBus(lg)
	events.RegisterAuditLog(bus, lg)
	defer bus.Wait()

	graph := rbac.NewService(rbacPostgres.NewGraphRepository(db), defaultRole, lg, rbac.WithPublisher(bus))
	users := user.NewService(userPostgres.NewUserRepository(db), graph, hasher, bus, lg)

	roles, err := graph.Bootstrap(ctx, rbac.DefaultPermissions, rbac.DefaultCatalog)
	if err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}

	for _, acc := range demoAccounts {
		role, ok := roles[acc.Role]
		if !ok {
			return fmt.Errorf("role %q missing from catalog", acc.Role)
		}

		_, err := users.Create(ctx, user.NewUser{
			Name:     acc.Name,
			Email:    acc.Email,
			Password: demoPassword,
			IsActive: true,
			RoleIDs:  []int64{role.ID},
			Source:   user.SourceAdmin,
		})
		if err != nil {
			if internal.HasType(err, internal.ErrorTypeConflict) {
				lg.Info("demo account already exists", "email", acc.Email)
				continue
			}
			return fmt.Errorf("failed to seed %s: %w", acc.Email, err)
		}
		lg.Info("seeded demo account", "email", acc.Email, "role", acc.Role)
	}

	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/auth"
	"github.com/frahmantamala/rbac-service/internal/core/events"
	"github.com/frahmantamala/rbac-service/internal/credential"
	"github.com/frahmantamala/rbac-service/internal/observability"
	"github.com/frahmantamala/rbac-service/internal/post"
	postPostgres "github.com/frahmantamala/rbac-service/internal/post/postgres"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	rbacPostgres "github.com/frahmantamala/rbac-service/internal/rbac/postgres"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/internal/transport/rest"
	"github.com/frahmantamala/rbac-service/internal/user"
	userPostgres "github.com/frahmantamala/rbac-service/internal/user/postgres"
	"github.com/frahmantamala/rbac-service/pkg/logger"

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *gorm.DB
	Reader   *sqlx.DB
	Redis    *redis.Client
	Bus      *events.EventBus
	Metrics  *observability.Metrics
	Graph    *rbac.Service
	Users    *user.Service
	Router   *chi.Mux
	Handlers rest.Handlers
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "env", deps.Config.Env)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.close()
			os.Exit(1)
		}
	}

	deps.close()
	deps.Logger.Info("Server stopped")
}

// close drains in-flight event handlers before releasing connections they
// may still use.
func (d *Dependencies) close() {
	d.Bus.Wait()
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
	}
	if err := d.Reader.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config
	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	rest.RegisterAllRoutes(deps.Router, deps.Reader, deps.Handlers, deps.Metrics, rest.RouterConfig{
		Production:  cfg.Env == "production",
		RateLimit:   cfg.RateLimit,
		MetricsPath: metricsPath,
	}, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lg := logger.Configure(config.Observability.Logging.Level, config.Observability.Logging.Format)
	if config.Env == "production" && config.Security.UsesDefaultSecrets() {
		lg.Warn("token signing secrets are the built-in defaults; set ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET")
	}

	db, reader, err := initDB(config.Database, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	hasher, err := credential.NewHasher(config.Security.BCryptCost, config.Security.HashConcurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize hasher: %w", err)
	}

	tokens, err := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
		lg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	var metrics *observability.Metrics
	if config.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	bus := events.NewEventBus(lg)
	events.RegisterAuditLog(bus, lg)
	metrics.RegisterEventHandlers(bus)

	redisClient := initRedis(config.Cache, lg)
	opts := []rbac.Option{rbac.WithPublisher(bus)}
	if redisClient != nil {
		opts = append(opts, rbac.WithCache(rbac.NewCache(redisClient, config.Cache.TTL)))
	}
	graph := rbac.NewService(rbacPostgres.NewGraphRepository(db), config.Security.DefaultRole, lg, opts...)
	rbac.RegisterEventHandlers(bus, graph)

	users := user.NewService(userPostgres.NewUserRepository(db), graph, hasher, bus, lg)
	authSvc := auth.NewService(users, tokens, hasher, lg).WithMetrics(metrics)
	guard := auth.NewGuard(tokens, users, graph, lg).WithMetrics(metrics)
	posts := post.NewService(postPostgres.NewPostRepository(db, reader), auth.NewOwnershipPolicy(graph, lg), lg)

	base := transport.NewBaseHandler(lg)

	return &Dependencies{
		Config:  config,
		DB:      db,
		Reader:  reader,
		Redis:   redisClient,
		Bus:     bus,
		Metrics: metrics,
		Graph:   graph,
		Users:   users,
		Router:  chi.NewRouter(),
		Handlers: rest.Handlers{
			Auth:  auth.NewHandler(base, authSvc),
			User:  user.NewHandler(base, users, graph),
			RBAC:  rbac.NewHandler(base, graph),
			Post:  post.NewHandler(base, posts),
			Guard: guard,
		},
		Logger: lg,
	}, nil
}

// initRedis returns nil when caching is disabled or the server is
// unreachable; resolution then always reads the database.
func initRedis(cfg internal.CacheConfig, lg *slog.Logger) *redis.Client {
	if !cfg.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := internal.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		lg.Warn("redis unavailable, permission cache disabled", "addr", cfg.Addr, "error", err)
		_ = client.Close()
		return nil
	}

	lg.Info("redis connected", "addr", cfg.Addr, "ttl", cfg.TTL)
	return client
}

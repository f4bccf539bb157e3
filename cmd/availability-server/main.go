package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/salonhub/availability/internal/config"
	"github.com/salonhub/availability/internal/domain/appointment"
	"github.com/salonhub/availability/internal/domain/timeblock"
	"github.com/salonhub/availability/internal/platform/auth"
	"github.com/salonhub/availability/internal/platform/cache"
	"github.com/salonhub/availability/internal/platform/db"
	"github.com/salonhub/availability/internal/platform/janitor"
	"github.com/salonhub/availability/internal/platform/middleware"
	"github.com/salonhub/availability/internal/platform/outbox"
	"github.com/salonhub/availability/internal/platform/telemetry"
	"github.com/salonhub/availability/migrations"
)

var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "availability-server",
		Short: "Provider availability and conflict API",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(janitorCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the availability API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// migrationSource returns dir when set, otherwise the embedded schema.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationSource(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationSource(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func janitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Maintenance tasks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Prune published outbox events once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := newJanitor(cfg, outbox.NewRepository(pool), logger).RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d outbox event(s).\n", n)
			return nil
		},
	})
	return cmd
}

func newJanitor(cfg *config.Config, pruner janitor.Pruner, logger zerolog.Logger) *janitor.Janitor {
	retention := time.Duration(cfg.OutboxRetentionDays) * 24 * time.Hour
	return janitor.New(pruner, retention, logger.With().Str("component", "janitor").Logger())
}

func newOccurrenceStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) cache.Store {
	if cfg.RedisURL == "" {
		logger.Info().Msg("occurrence cache disabled (no REDIS_URL)")
		return cache.Nop{}
	}
	store, err := cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, occurrence cache disabled")
		return cache.Nop{}
	}
	return store
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthJWKSURL == "" {
		return auth.DevAuthMiddleware()
	}
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return auth.JWTMiddleware(jwtCfg)
}

// newServer assembles the middleware chain and routes. dbHealth serves
// /health/db.
func newServer(cfg *config.Config, logger zerolog.Logger, h *timeblock.Handler, dbHealth echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.DevProviderHeader},
	}))
	e.Use(telemetry.TracingMiddleware(nil))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/api/v1/occurrences.ics"))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if dbHealth != nil {
		e.GET("/health/db", dbHealth)
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Rate limiting runs after auth so buckets are keyed by provider.
	apiV1 := e.Group("/api/v1", authMiddleware(cfg), middleware.RateLimit(rateLimitCfg))
	h.RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store := newOccurrenceStore(ctx, cfg, logger)
	defer store.Close()

	events := outbox.NewRepository(pool)
	publisher := outbox.NewPublisher(pool, events, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokerList(),
		PollEvery: cfg.OutboxPollInterval,
		BatchSize: cfg.OutboxBatchSize,
	})
	go publisher.Run(ctx)

	if err := newJanitor(cfg, events, logger).Start(ctx, cfg.JanitorSchedule); err != nil {
		logger.Fatal().Err(err).Msg("failed to start janitor")
	}

	svcLogger := logger.With().Str("component", "timeblock").Logger()
	svc := timeblock.NewService(
		timeblock.NewRepoPG(pool),
		db.NewTxManager(pool),
		appointment.NewRepoPG(pool),
		timeblock.WithLocation(loc),
		timeblock.WithConflictHorizon(cfg.ConflictHorizonDays),
		timeblock.WithEvents(events),
		timeblock.WithCache(timeblock.NewStoreCache(store, cfg.CacheTTL, svcLogger)),
		timeblock.WithLogger(svcLogger),
	)

	e := newServer(cfg, logger, timeblock.NewHandler(svc), db.HealthHandler(pool, db.PoolStatsFunc(pool)))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

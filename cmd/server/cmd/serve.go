package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/verisend/server/internal/api"
	"github.com/verisend/server/internal/auth"
	"github.com/verisend/server/internal/config"
	"github.com/verisend/server/internal/domain/users"
	"github.com/verisend/server/internal/domain/verification"
	"github.com/verisend/server/internal/email"
	"github.com/verisend/server/internal/jobs"
	"github.com/verisend/server/internal/metrics"
	"github.com/verisend/server/internal/storage/postgres"
	"github.com/verisend/server/internal/telemetry"
	"github.com/verisend/server/internal/ws"
	"github.com/verisend/server/web"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
	workerMode bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Verisend HTTP server",
	Long: `Start the Verisend server and begin accepting requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Bootstrap admin user if ADMIN_* env vars are set
- Start the HTTP API, WebSocket fan-out, and queue dashboard (main role)
- Start River job workers on a separate operational port (worker role)
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start the main API process (from env vars)
  server serve

  # Start the job worker process
  server serve --worker

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080 main, 8081 worker)")
	serveCmd.Flags().BoolVar(&workerMode, "worker", false, "run as the job worker process")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// Override config with flags if provided
	if workerMode {
		cfg.Server.Role = config.RoleWorker
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		if cfg.Server.Role == config.RoleWorker {
			cfg.Server.WorkerPort = serverPort
		} else {
			cfg.Server.Port = serverPort
		}
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("role", cfg.Server.Role).Msg("starting verisend server")

	metrics.Init(Version, GitCommit, BuildDate, cfg.Server.Role)
	logger.Info().Str("version", Version).Msg("metrics initialized")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(rootCtx, cfg.Monitoring, Version)
	if err != nil {
		return fmt.Errorf("telemetry init failed: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown error")
		}
	}()

	poolCtx, poolCancel := context.WithTimeout(rootCtx, 10*time.Second)
	pool, err := newPool(poolCtx, cfg.Database)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("repository init failed: %w", err)
	}

	bootstrapCtx, bootstrapCancel := context.WithTimeout(rootCtx, 10*time.Second)
	if err := bootstrapAdminUser(bootstrapCtx, cfg, repo.Users(), logger); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}
	bootstrapCancel()

	group, groupCtx := errgroup.WithContext(rootCtx)

	// Database metrics collector (collect every 15 seconds)
	dbCollector := metrics.NewDBCollector(pool)
	group.Go(func() error {
		dbCollector.Start(groupCtx, 15*time.Second)
		return nil
	})

	// WebSocket hub with the Postgres LISTEN/NOTIFY bridge. Every process
	// publishes through pg_notify; only main processes hold subscribers.
	hub := ws.NewHub(logger)
	group.Go(func() error {
		hub.Run(groupCtx)
		return nil
	})
	bridge := ws.NewBridge(pool, hub, logger)
	if cfg.Server.Role == config.RoleMain {
		group.Go(func() error {
			return bridge.Listen(groupCtx)
		})
	}

	emailService, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("email service init failed: %w", err)
	}

	verifications := verification.NewService(repo.Verifications(), nil, bridge, logger)

	riverClient, err := newRiverClient(cfg, pool, emailService, verifications, logger)
	if err != nil {
		return fmt.Errorf("river client init failed: %w", err)
	}
	verifications.SetEnqueuer(jobs.NewEnqueuer(riverClient))

	if cfg.Server.Role == config.RoleWorker {
		if err := riverClient.Start(groupCtx); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("river job workers started")
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				logger.Error().Err(err).Msg("river workers shutdown error")
			} else {
				logger.Info().Msg("river workers stopped")
			}
		}()
	}

	templates, err := web.Templates()
	if err != nil {
		return fmt.Errorf("template parse failed: %w", err)
	}

	handler := api.NewRouter(api.RouterDeps{
		Config:        cfg,
		Logger:        logger,
		Pool:          pool,
		Verifications: verifications,
		Users:         repo.Users(),
		RiverClient:   riverClient,
		JWTManager:    auth.NewJWTManager(cfg.Auth.Secret, cfg.Auth.TokenExpiry, cfg.Auth.Issuer),
		Hub:           hub,
		Templates:     templates,
		Version:       Version,
		GitCommit:     GitCommit,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.ListenPort()),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	group.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	// Drain connections once a signal arrives or any component fails.
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info().Msg("shutting down")

		hub.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	err = group.Wait()
	if err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newPool connects to Postgres with the configured connection ceiling.
func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	return pgxpool.NewWithConfig(ctx, poolConfig)
}

// newRiverClient builds the role-appropriate River client. Worker processes
// get the full worker registry and periodic cleanup; main processes get an
// insert-only client that never starts.
func newRiverClient(cfg config.Config, pool *pgxpool.Pool, sender *email.Service, verifications *verification.Service, logger zerolog.Logger) (*river.Client[pgx.Tx], error) {
	slogLogger := config.NewSlogLogger(cfg.Logging)

	if cfg.Server.Role != config.RoleWorker {
		return jobs.NewClient(pool, nil, slogLogger, nil, nil, 0)
	}

	workers := river.NewWorkers()
	if err := jobs.RegisterWorkers(workers, jobs.WorkerDeps{
		Sender:  sender,
		Service: verifications,
		Logger:  slogLogger,
	}); err != nil {
		return nil, err
	}

	hooks := []rivertype.Hook{metrics.NewRiverMetricsHook()}
	periodic := jobs.NewPeriodicJobs(cfg.Jobs.CleanupInterval)
	return jobs.NewClient(pool, workers, slogLogger, hooks, periodic, cfg.Jobs.MaxWorkers)
}

func bootstrapAdminUser(ctx context.Context, cfg config.Config, repo users.Repository, logger zerolog.Logger) error {
	bootstrap := cfg.AdminBootstrap
	if bootstrap.Username == "" || bootstrap.Password == "" || bootstrap.Email == "" {
		logger.Warn().Msg("admin bootstrap env vars not fully set; skipping")
		return nil
	}

	if _, err := repo.GetByUsername(ctx, bootstrap.Username); err == nil {
		return nil
	} else if !errors.Is(err, users.ErrNotFound) {
		return fmt.Errorf("check admin user: %w", err)
	}

	hash, err := auth.HashPassword(bootstrap.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	user := users.User{
		ID:           ulid.Make().String(),
		Username:     bootstrap.Username,
		Email:        bootstrap.Email,
		PasswordHash: hash,
		Role:         "admin",
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Insert(ctx, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	// Redact email in production to avoid PII leaks
	if cfg.Environment == "production" {
		logger.Info().Str("username", bootstrap.Username).Msg("bootstrapped admin user")
	} else {
		logger.Info().Str("email", bootstrap.Email).Str("username", bootstrap.Username).Msg("bootstrapped admin user")
	}
	return nil
}

package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/csvpress/csvpress/internal/config"
	"github.com/csvpress/csvpress/internal/importer"
	"github.com/csvpress/csvpress/internal/logging"
	"github.com/csvpress/csvpress/internal/store"
	"github.com/csvpress/csvpress/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"error_ceiling", cfg.Import.ErrorCeiling,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	if err := store.EnsureSchema(ctx, pool); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	fetcher := importer.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.MaxRetries, cfg.Fetch.MaxBodySize)

	// Email goes out only when SMTP is configured; otherwise notifications
	// land in the log.
	var notifier importer.Notifier
	if cfg.Notify.SMTPHost != "" {
		notifier = importer.NewSMTPNotifier(
			cfg.Notify.SMTPHost,
			cfg.Notify.SMTPPort,
			cfg.Notify.SMTPUser,
			cfg.Notify.SMTPPassword,
			cfg.Notify.From,
		)
		slog.Info("notifications via smtp", "host", cfg.Notify.SMTPHost)
	} else {
		notifier = importer.LogNotifier{}
		slog.Info("notifications via log only")
	}

	service := importer.NewService(
		store.NewKVStore(pool),
		store.NewContentStore(pool),
		store.NewBackupStore(pool),
		store.NewLogStore(pool),
		fetcher,
		notifier,
		importer.ServiceOptions{
			Engine: importer.EngineOptions{
				ErrorCeiling:     cfg.Import.ErrorCeiling,
				CancelCheckEvery: cfg.Import.CancelCheckEvery,
				PaceEvery:        cfg.Import.PaceEvery,
				PacePause:        cfg.Import.PacePause,
			},
			StaleAfter:       cfg.Import.StaleAfter,
			WarnAfter:        cfg.Import.WarnAfter,
			CriticalInterval: cfg.Notify.CriticalInterval,
		},
	)

	// Create server with config
	server := web.NewServer(service, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	// Start maintenance scheduler with config values
	go service.StartMaintenanceScheduler(jobCtx, importer.MaintenanceConfig{
		Daily:               cfg.Jobs.DailyInterval,
		Weekly:              cfg.Jobs.WeeklyInterval,
		BackupRetentionDays: cfg.Backup.RetentionDays,
		ErrorTrendDays:      cfg.Jobs.ErrorTrendDays,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

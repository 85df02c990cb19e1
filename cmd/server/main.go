package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/catalog-importer/internal/blob"
	"github.com/JonMunkholm/catalog-importer/internal/config"
	"github.com/JonMunkholm/catalog-importer/internal/core"
	"github.com/JonMunkholm/catalog-importer/internal/database"
	"github.com/JonMunkholm/catalog-importer/internal/logging"
	"github.com/JonMunkholm/catalog-importer/internal/queue"
	"github.com/JonMunkholm/catalog-importer/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	// Database
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		slog.Info("database schema applied")
	}
	store := database.NewStore(pool)

	// Object storage
	blobs, err := blob.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open object storage: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %q: %w", cfg.Storage.Bucket, err)
	}
	slog.Info("object storage ready", "bucket", cfg.Storage.Bucket, "endpoint", cfg.Storage.Endpoint)

	// Job queue
	rdb, err := queue.Connect(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()

	tasks := queue.New(rdb, cfg.Redis.QueueKey, queue.DefaultPollWait)
	if n, err := tasks.Requeue(ctx); err != nil {
		return fmt.Errorf("requeue tasks: %w", err)
	} else if n > 0 {
		slog.Info("requeued unacknowledged tasks", "count", n)
	}

	service := core.NewService(store, blobs, tasks, core.Options{
		BatchSize:   cfg.Import.BatchSize,
		MaxFileSize: cfg.Import.MaxFileSize,
		JobTimeout:  cfg.Import.JobTimeout,
		Fetch: core.RetryPolicy{
			Timeout:  cfg.Import.FetchTimeout,
			Attempts: cfg.Import.FetchAttempts,
			Backoff:  cfg.Import.FetchBackoff,
		},
	})
	if _, _, err := service.RecoverJobs(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	// Background work
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	worker := core.NewWorker(service, cfg.Import.Workers)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(bgCtx)
	}()

	sweeper := core.NewRetentionSweeper(store, blobs, cfg.Retention.MaxAge)
	if cfg.Retention.Enabled {
		go sweeper.StartRetentionScheduler(bgCtx, core.RetentionConfig{
			CheckInterval: cfg.Retention.CheckInterval,
		})
	}

	server := web.NewServer(cfg, web.Deps{
		Service:   service,
		Worker:    worker,
		Sweeper:   sweeper,
		Presigner: blobs,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Server.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down...", "signal", sig.String())
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	// Stop dispatching, then give running jobs the rest of the budget.
	stopBackground()
	<-workerDone
	if st := worker.Status(); st.Active > 0 {
		slog.Info("waiting for running jobs", "active", st.Active)
	}
	start := time.Now()
	if err := worker.Shutdown(shutdownCtx); err != nil {
		slog.Warn("jobs did not finish in time and were aborted", "error", err)
	} else {
		slog.Info("all jobs finished", "waited", time.Since(start))
	}
	return nil
}

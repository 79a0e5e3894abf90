// Package main is the entrypoint for the docpipe API server.
package main

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

	"github.com/docpipe/docpipe/internal/api"
	"github.com/docpipe/docpipe/internal/api/handler"
	mw "github.com/docpipe/docpipe/internal/api/middleware"
	"github.com/docpipe/docpipe/internal/blob"
	"github.com/docpipe/docpipe/internal/cache"
	"github.com/docpipe/docpipe/internal/config"
	"github.com/docpipe/docpipe/internal/convert"
	"github.com/docpipe/docpipe/internal/extract"
	"github.com/docpipe/docpipe/internal/pipeline"
	"github.com/docpipe/docpipe/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"extraction_provider", cfg.Extraction.Provider,
		"storage_backend", cfg.Storage.Backend,
		"env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create blob store
	blobs, err := newBlobStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	// 6. Create extraction provider
	extractor, err := extract.NewExtractor(cfg.Extraction)
	if err != nil {
		return fmt.Errorf("create extractor: %w", err)
	}
	slog.Info("extraction provider initialized", "provider", extractor.Name())

	// 7. Wire the pipeline
	pgStore := store.NewPostgresStore(pool)
	converters := convert.DefaultRegistry(blobs)

	orch := pipeline.New(pgStore, blobs, converters, extractor, redisCache,
		pipeline.ConfigFrom(cfg.Pipeline, cfg.Extraction))

	if err := orch.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	orch.Start(workerCtx)
	slog.Info("pipeline workers started", "workers", cfg.Pipeline.JobWorkers)

	// 8. Build router with dependencies
	rateLimit := mw.NewRateLimit(redisCache, 60)

	router := api.NewRouter(api.Dependencies{
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),

		SubmitHandler: handler.NewSubmitHandler(orch, cfg.Server.MaxUploadSize),
		ListHandler:   handler.NewListHandler(orch),
		StatusHandler: handler.NewStatusHandler(orch),
		ResultHandler: handler.NewResultHandler(orch),
		CancelHandler: handler.NewCancelHandler(orch),
		DeleteHandler: handler.NewDeleteHandler(orch),
	})

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Stop accepting pipeline work and let in-flight jobs drain. Jobs still
	// queued in the store are picked up by Recover on the next run.
	stopWorkers()
	orch.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

func newBlobStore(cfg config.StorageConfig) (blob.Store, error) {
	switch cfg.Backend {
	case "memory":
		return blob.NewMemoryStore(), nil
	default:
		return blob.NewFSStore(cfg.Root)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"task-file-drop/internal/config"
	"task-file-drop/internal/db"
	"task-file-drop/internal/logging"
	"task-file-drop/internal/server"
	"task-file-drop/internal/store"
	"task-file-drop/internal/uploads"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "service=backend msg=%q err=%v\n", "config_load_failed", err)
		os.Exit(1)
	}

	log := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	// Safety: refuse to start on a configuration that cannot work.
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", nil, err)
		os.Exit(1)
	}

	st, checks, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "store setup failed", nil, err)
		os.Exit(1)
	}
	defer closeStore()

	metrics := server.NewMetrics()
	svc := uploads.New(uploads.Deps{
		Store:   st,
		Logger:  log,
		Metrics: metrics,
		Timeout: cfg.StoreTimeout,
	})

	srv := server.New(server.Config{
		Addr:            cfg.ListenAddr,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		MultipartMemory: cfg.MultipartMemory,
		CORSOrigin:      cfg.CORSOrigin,
		Version:         cfg.Version,
	}, server.Deps{
		Uploads: svc,
		Checks:  checks,
		Logger:  log,
		Metrics: metrics,
	})

	// Start the HTTP server in a background goroutine so we can wait for signals.
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting", logging.Fields{
			"addr":         cfg.ListenAddr,
			"version":      cfg.Version,
			"memory_store": cfg.UsesMemoryStore(),
			"blob_offload": cfg.Blob.Enabled(),
		})
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info(ctx, "shutting down", logging.Fields{"signal": sig.String()})
		// In-flight uploads get 5 seconds to finish.
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "shutdown error", nil, err)
		}
		log.Info(ctx, "shutdown complete", nil)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server error", nil, err)
			closeStore()
			os.Exit(1)
		}
	}
}

// buildStore assembles the gateway stack for cfg:
// base store (PostgreSQL or memory) -> optional blob offload -> circuit breaker.
// It also returns the components for health checks and a close func whose
// errors are only logged.
func buildStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (store.Store, map[string]store.Pinger, func(), error) {
	checks := make(map[string]store.Pinger)

	var (
		base    store.Store
		closers []func() error
	)
	if cfg.UsesMemoryStore() {
		mem := store.NewMemoryStore()
		base = mem
		checks["database"] = mem
		closers = append(closers, mem.Close)
		log.Warn(ctx, "using in-memory store, records are lost on exit", nil, nil)
	} else {
		dbConn, err := db.OpenDB(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("db connect: %w", err)
		}
		log.Info(ctx, "running migrations", nil)
		if err := db.RunMigrations(dbConn); err != nil {
			_ = dbConn.Close()
			return nil, nil, nil, fmt.Errorf("migrations: %w", err)
		}
		pg := store.NewPGStore(dbConn)
		base = pg
		checks["database"] = pg
		closers = append(closers, dbConn.Close)
	}

	st := base
	if cfg.Blob.Enabled() {
		blobs, err := store.NewMinioBlobs(ctx, store.MinioOptions{
			Endpoint:  cfg.Blob.Endpoint,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			Bucket:    cfg.Blob.Bucket,
		})
		if err != nil {
			runClosers(ctx, log, closers)
			return nil, nil, nil, fmt.Errorf("blob store: %w", err)
		}
		st = store.NewOffloadStore(st, blobs, cfg.Blob.ThresholdBytes)
		checks["blob"] = blobs
	}

	breaker := store.NewCircuitBreaker(uint32(cfg.StoreBreaker.Failures), cfg.StoreBreaker.Cooldown, log)
	checks["circuit"] = breaker

	closeFn := func() { runClosers(ctx, log, closers) }
	return store.NewBreakerStore(st, breaker), checks, sync.OnceFunc(closeFn), nil
}

func runClosers(ctx context.Context, log *logging.Logger, closers []func() error) {
	for _, c := range closers {
		if err := c(); err != nil {
			log.Warn(ctx, "close failed", nil, err)
		}
	}
}

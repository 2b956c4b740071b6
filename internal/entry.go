// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/noteban/noteban/internal/api"
	"github.com/noteban/noteban/internal/cache"
	"github.com/noteban/noteban/internal/mcpserver"
	"github.com/noteban/noteban/internal/noteservice"
	"github.com/noteban/noteban/internal/selfwrite"
	"github.com/noteban/noteban/internal/sse"
	"github.com/noteban/noteban/internal/storage"
	"github.com/noteban/noteban/internal/watch"
)

// resolveConfig applies the options and returns the effective configuration.
func resolveConfig(opts []Option) (*Config, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config
	if app.profile != "" {
		cfg.Cache.Profile = app.profile
	}
	return cfg, nil
}

// buildService wires storage, the cache store and the note service for one
// vault. The returned DB is owned by the caller.
func buildService(ctx context.Context, cfg *Config, logger *slog.Logger) (*noteservice.Service, *cache.DB, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := cache.OpenProfile(cfg.Cache.Dir, cfg.Cache.Profile)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}

	// A corrupt cache is not fatal. Drop everything and let listings
	// rebuild it from the vault.
	if !db.IntegrityCheck() {
		logger.Warn("cache integrity check failed, invalidating")
		if err := db.InvalidateAll(); err != nil {
			logger.Warn("cache invalidation failed", slog.String("error", err.Error()))
		}
	}

	svc := noteservice.NewService(store, db, selfwrite.New(), logger)

	// Warm the cache with a full resync.
	if _, err := svc.FullList(ctx); err != nil {
		logger.Warn("initial resync failed", slog.String("error", err.Error()))
	}

	return svc, db, nil
}

// Run starts the HTTP server and vault watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("cache_profile", cfg.Cache.Profile),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc, db, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	// Vault watcher. External edits that survive reconciliation fan out
	// to SSE clients; our own writes are suppressed inside ApplyChanges.
	watcher := watch.New(cfg.Vault.Path, cfg.Watch.Debounce(), logger, func(batch []noteservice.Change) {
		result, err := svc.ApplyChanges(gCtx, batch)
		if err != nil {
			logger.Warn("resync batch failed", slog.String("error", err.Error()))
			return
		}
		for _, n := range result.Updated {
			broker.PublishNoteEvent(sse.KindUpdated, n.Note.Path)
		}
		for _, path := range result.Removed {
			broker.PublishNoteEvent(sse.KindRemoved, path)
		}
	})
	g.Go(func() error {
		return watcher.Run(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("http server listening", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("context cancelled, shutting down")
		}

		logger.Info("stopping http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", slog.String("error", err.Error()))
		}

		// Unblock the watcher so Wait can return.
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// RunMCP serves the note tools over MCP stdio. Logs go to stderr so the
// protocol stream on stdout stays clean.
func RunMCP(ctx context.Context, opts ...Option) error {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	svc, db, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("mcp server listening on stdio", slog.String("vault_path", cfg.Vault.Path))

	return mcpserver.New(svc).ServeStdio()
}

// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/vcq/internal/api"
	"github.com/starford/vcq/internal/contactservice"
	"github.com/starford/vcq/internal/mcpserver"
	"github.com/starford/vcq/internal/query"
	"github.com/starford/vcq/internal/sse"
	"github.com/starford/vcq/internal/watch"
)

var (
	errConfigRequired = errors.New("config is required")
	errNoDirectories  = errors.New("no vCard directories configured")
)

// buildService opens the configured store and loads every directory.
func buildService(ctx context.Context, cfg *Config, logger *slog.Logger) (*contactservice.Service, error) {
	if len(cfg.Directories) == 0 {
		return nil, errNoDirectories
	}
	store, err := OpenStore(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("init cache store: %w", err)
	}
	svc, err := contactservice.NewService(store, cfg.Directories, logger)
	if err != nil {
		return nil, err
	}
	infos := svc.LoadAll(ctx)
	logger.Info("Directories loaded", slog.String("directories", contactservice.Describe(infos)))
	return svc, nil
}

// Run starts the daemon with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Any("directories", cfg.Directories),
		slog.String("cache_backend", cfg.Cache.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, broker.PublishDirectoryEvent)

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
		for _, info := range svc.Directories() {
			if info.Error == "" {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"status":"ok"}`))
				return
			}
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"no directory loaded"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start directory watcher with SSE callback.
	g.Go(func() error {
		return watch.Watch(gCtx, svc, logger, watch.DefaultDebounce, broker.PublishDirectoryEvent)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the query tools over MCP on stdin/stdout. Logs go to stderr
// since stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}

	svc, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	return mcpserver.New(svc, app.version).ServeStdio()
}

// QueryRequest holds the per-invocation settings of a one-shot query.
type QueryRequest struct {
	Pattern       string
	Regex         bool
	AllAddresses  bool
	SortByName    bool
	Mode          string
	StartingFirst bool
	StatusLine    bool
	ClearCache    bool
}

// Query runs one query over the configured directories and prints the
// result to w. Invalid patterns, modes and directories are reported before
// anything is scanned.
func Query(ctx context.Context, w io.Writer, req QueryRequest, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	}

	pattern, err := query.Compile(req.Pattern, req.Regex)
	if err != nil {
		return err
	}
	mode, err := query.ParseMode(req.Mode)
	if err != nil {
		return err
	}
	if err := contactservice.CheckDirectories(cfg.Directories); err != nil {
		return err
	}

	store, err := OpenStore(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init cache store: %w", err)
	}
	svc, err := contactservice.NewService(store, cfg.Directories, logger)
	if err != nil {
		return err
	}
	if req.ClearCache {
		if err := svc.Forget(); err != nil {
			logger.Warn("clear cache failed", slog.String("error", err.Error()))
		}
	}
	infos := svc.LoadAll(ctx)
	logger.Debug("directories loaded", slog.String("directories", contactservice.Describe(infos)))

	sortBy := query.SortByMail
	if req.SortByName {
		sortBy = query.SortByName
	}
	recs := svc.Query(ctx, query.Options{
		Pattern:       pattern,
		AllAddresses:  req.AllAddresses,
		SortBy:        sortBy,
		StartingFirst: req.StartingFirst,
	})
	return query.Write(w, recs, mode, req.StatusLine)
}

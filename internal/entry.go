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

	"github.com/starford/blockref/internal/api"
	"github.com/starford/blockref/internal/corpus"
	"github.com/starford/blockref/internal/mcpserver"
	"github.com/starford/blockref/internal/refindex"
	"github.com/starford/blockref/internal/refservice"
	"github.com/starford/blockref/internal/sse"
	"github.com/starford/blockref/internal/storage"
	"github.com/starford/blockref/internal/watch"
)

// indexThrottle bounds how often index.updated is pushed to SSE clients.
const indexThrottle = 2 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// buildService opens the vault and performs the initial full index.
func (a *application) buildService(logger *slog.Logger, pub refservice.Publisher) (*refservice.Service, storage.Provider, error) {
	cfg := a.config

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	docs, err := corpus.New(store, cfg.Preview.CacheSize)
	if err != nil {
		return nil, nil, fmt.Errorf("init corpus: %w", err)
	}

	svc := refservice.New(store, docs, refindex.New(docs, logger), pub, cfg.Index.Options(), logger)
	if err := svc.Sync(); err != nil {
		logger.Warn("initial sync incomplete", slog.String("error", err.Error()))
	}
	return svc, store, nil
}

// Run starts the HTTP server, the vault watcher and the update scheduler.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.Duration("debounce", cfg.Index.Debounce),
		slog.Duration("typing_idle", cfg.Index.TypingIdle),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(indexThrottle)
	defer broker.Close()

	svc, store, err := app.buildService(logger, broker)
	if err != nil {
		return err
	}
	defer svc.Close()

	h := api.NewHandler(svc, cfg.Display.Settings(), cfg.Preview.Enabled)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Vault.Watch {
		g.Go(func() error {
			if err := watch.Watch(gCtx, store, svc, logger); err != nil {
				return fmt.Errorf("watcher: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		// Close SSE streams first so Shutdown does not wait on them.
		broker.Close()

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

// RunMCP indexes the vault and serves MCP tools over stdio until stdin
// closes. The watcher keeps the index current meanwhile.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()

	svc, store, err := app.buildService(logger, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	g, gCtx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gCtx)

	if app.config.Vault.Watch {
		g.Go(func() error {
			return watch.Watch(watchCtx, store, svc, logger)
		})
	}

	g.Go(func() error {
		defer stopWatch()
		logger.Info("MCP server starting on stdio", slog.String("vault_path", app.config.Vault.Path))
		return mcpserver.New(svc, app.version).ServeStdio()
	})

	return g.Wait()
}

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
	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/starford/gtsreg/internal/api"
	"github.com/starford/gtsreg/internal/index"
	"github.com/starford/gtsreg/internal/lock"
	"github.com/starford/gtsreg/internal/mcpserver"
	"github.com/starford/gtsreg/internal/models"
	"github.com/starford/gtsreg/internal/registry"
	"github.com/starford/gtsreg/internal/sse"
	"github.com/starford/gtsreg/internal/storage"
	"github.com/starford/gtsreg/internal/workspace"
)

var errConfigRequired = errors.New("config is required")

// memoryDSN backs the index of one-shot commands, which must not contend
// for the lock held by a running server.
const memoryDSN = ":memory:"

func (a *application) logger() *slog.Logger {
	out := a.logOutput
	if out == nil {
		out = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// registryLogger is the application logger, lowered to debug level when
// validation debugging is enabled.
func (a *application) registryLogger(logger *slog.Logger) *slog.Logger {
	if !a.config.Validation.Debug {
		return logger
	}
	out := a.logOutput
	if out == nil {
		out = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// env is the set of components every entry point works on.
type env struct {
	svc  *workspace.Service
	db   *index.DB
	lock *lock.Lock
}

// open builds storage, registry, index and workspace service and loads the
// workspace. A persistent env opens the configured SQLite file under an
// advisory lock; otherwise the index lives in memory.
func (a *application) open(ctx context.Context, logger *slog.Logger, persistent bool, opts ...workspace.Option) (*env, error) {
	cfg := a.config
	e := &env{}

	if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Workspace.Path,
		storage.WithExtensions(cfg.Workspace.Extensions),
		storage.WithSkipDirs(cfg.Workspace.ToolingDir),
	)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	dsn := memoryDSN
	if persistent {
		e.lock, err = lock.Acquire(cfg.SQLite.LockPath())
		if err != nil {
			return nil, err
		}
		dsn = cfg.SQLite.Path
	}
	e.db, err = index.Open(dsn)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("init index: %w", err)
	}

	reg := registry.New(
		registry.WithConfig(cfg.GTS.Recognition()),
		registry.WithStructural(cfg.Validation.Structural),
		registry.WithToolingDir(cfg.Workspace.ToolingDir),
		registry.WithLogger(a.registryLogger(logger)),
		registry.WithFetcher(workspace.StoreFetcher(store)),
	)
	e.svc = workspace.NewService(store, e.db, reg, append([]workspace.Option{workspace.WithLogger(logger)}, opts...)...)

	if err := e.svc.Load(ctx); err != nil {
		e.close()
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	return e, nil
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.lock != nil {
		_ = e.lock.Release()
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.logger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("structural", cfg.Validation.Structural),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker fed by workspace change events.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	e, err := app.open(ctx, logger, true, workspace.WithEventCallback(broker.PublishFileEvent))
	if err != nil {
		return err
	}
	defer e.close()

	apiRouter := api.NewRouter(e.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]string{
			"status":     "ok",
			"generation": e.svc.Stats(r.Context()).Generation,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Workspace.Watch {
		g.Go(func() error {
			if err := e.svc.Watch(gCtx); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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

// Check loads the workspace once and returns the diagnostics of every file
// that has any.
func Check(ctx context.Context, opts ...Option) (map[string][]models.Diagnostic, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	e, err := app.open(ctx, app.logger(), false)
	if err != nil {
		return nil, err
	}
	defer e.close()
	return e.svc.AllDiagnostics(ctx), nil
}

// ServeMCP exposes the workspace over the MCP stdio transport until stdin
// closes.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.logger()
	slog.SetDefault(logger)

	e, err := app.open(ctx, logger, false)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if app.config.Workspace.Watch {
		go func() {
			if err := e.svc.Watch(ctx); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
		}()
	}

	logger.Info("MCP server starting", slog.String("workspace_path", app.config.Workspace.Path))
	return mcpserver.New(e.svc, app.version).ServeStdio()
}

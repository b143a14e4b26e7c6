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

	"github.com/starford/kvault/internal/api"
	"github.com/starford/kvault/internal/mcpserver"
	"github.com/starford/kvault/internal/migration"
	"github.com/starford/kvault/internal/models"
	"github.com/starford/kvault/internal/query"
	"github.com/starford/kvault/internal/sse"
	"github.com/starford/kvault/internal/store"
	"github.com/starford/kvault/internal/vault"
)

// components is the wired vault shared by every entry point.
type components struct {
	db       *store.DB
	svc      *vault.Service
	markdown *migration.MarkdownDir
}

func (a *application) init() (*slog.Logger, error) {
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("markdown_dir", cfg.Migration.MarkdownDir),
		slog.String("log_level", cfg.App.LogLevel.String()))
	return logger, nil
}

// build opens the database and wires stores, migration and services.
func (a *application) build(logger *slog.Logger, notifier vault.Notifier) (*components, error) {
	cfg := a.config

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	sources := migration.LegacyTables(db.Conn(),
		migration.SelectTables(migration.DefaultTables(), cfg.Migration.Tables))

	var md *migration.MarkdownDir
	if dir := cfg.Migration.MarkdownDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("create markdown dir: %w", err)
		}
		if md, err = migration.NewMarkdownDir(dir); err != nil {
			db.Close()
			return nil, fmt.Errorf("init markdown source: %w", err)
		}
		sources = append(sources, md)
	}

	engine := migration.NewEngine(db, sources,
		migration.WithConcurrency(cfg.Migration.Concurrency),
		migration.WithLogger(logger))

	opts := []vault.Option{vault.WithConcealExistence(cfg.Access.ConcealExistence)}
	if notifier != nil {
		opts = append(opts, vault.WithNotifier(notifier))
	}
	svc := vault.NewService(db, query.NewService(db), engine, opts...)

	logger.Info("Vault ready", slog.Any("migration_sources", engine.Sources()))
	return &components{db: db, svc: svc, markdown: md}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	logger, err := app.init()
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := app.build(logger, broker)
	if err != nil {
		return err
	}
	defer c.db.Close()

	apiRouter := api.NewRouter(c.svc, cfg.Auth.Options(), broker.Handler(api.OwnerFromRequest))

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(r.Context()); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Re-migrate owners whose markdown export changed.
	if cfg.Migration.Watch && c.markdown != nil {
		g.Go(func() error {
			return migration.Watch(gCtx, c.markdown.Root(), cfg.Migration.WatchDebounce, logger,
				func(ctx context.Context, owner string) {
					res, err := c.svc.Migrate(ctx, owner)
					if err != nil {
						logger.Warn("watch migration failed",
							slog.String("owner", owner),
							slog.String("error", err.Error()))
						return
					}
					logger.Info("watch migration done",
						slog.String("owner", owner),
						slog.Int("migrated", res.MigratedCount),
						slog.Int("errors", len(res.Errors)))
				})
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
		// Stop the watcher and anything else tied to the group.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// Migrate runs one migration for ownerID and returns its result.
func Migrate(ctx context.Context, ownerID string, opts ...Option) (*models.MigrationResult, error) {
	app := newApplication(opts)
	logger, err := app.init()
	if err != nil {
		return nil, err
	}
	c, err := app.build(logger, nil)
	if err != nil {
		return nil, err
	}
	defer c.db.Close()

	return c.svc.Migrate(ctx, ownerID)
}

// ServeMCP runs the MCP server on stdio until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	logger, err := app.init()
	if err != nil {
		return err
	}
	owner := app.config.MCPOwner()
	if owner == "" {
		return errors.New("mcp: owner_id or auth.default_owner is required")
	}
	c, err := app.build(logger, nil)
	if err != nil {
		return err
	}
	defer c.db.Close()

	logger.Info("MCP server starting", slog.String("owner", owner))
	return mcpserver.New(c.svc, owner).ServeStdio()
}

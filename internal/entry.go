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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/projects/internal/api"
	"github.com/starford/projects/internal/datasource"
	"github.com/starford/projects/internal/index"
	"github.com/starford/projects/internal/mcpserver"
	"github.com/starford/projects/internal/project"
	"github.com/starford/projects/internal/sse"
	"github.com/starford/projects/internal/storage"
	"github.com/starford/projects/internal/view"
	"github.com/starford/projects/internal/view/gallery"
	"github.com/starford/projects/internal/view/table"
	"github.com/starford/projects/internal/workspace"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg      *Config
	logger   *slog.Logger
	store    *storage.FS
	db       *index.DB
	projects *project.Store
	registry *view.MapRegistry
}

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// start opens storage, the index and the project settings. Logs go to
// logOut as JSON.
func (a *application) start(logOut io.Writer) (*runtime, error) {
	cfg := a.config

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("settings_path", cfg.Projects.SettingsPath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	projects, err := project.Open(cfg.Projects.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("init projects: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	// Run initial sync.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	registry := view.NewMapRegistry()
	registry.Register(table.Type, table.New)
	registry.Register(gallery.Type, gallery.New)

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		db:       db,
		projects: projects,
		registry: registry,
	}, nil
}

func (rt *runtime) workspace(notifier datasource.Notifier, publisher workspace.Publisher) *workspace.Workspace {
	return workspace.New(workspace.Config{
		Projects: rt.projects,
		Sources: datasource.Deps{
			Store:    rt.store,
			Index:    rt.db,
			Logger:   rt.logger,
			Notifier: notifier,
		},
		Indexer:     rt.db,
		Registry:    rt.registry,
		Publisher:   publisher,
		Frontmatter: rt.cfg.Frontmatter.Options(),
		Logger:      rt.logger,
	})
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.start(os.Stdout)
	if err != nil {
		return err
	}
	defer rt.db.Close()
	cfg, logger := rt.cfg, rt.logger

	// SSE broker. It is both the notifier of data sources and the publisher
	// of record events.
	broker := sse.NewBroker(cfg.Events.FrameThrottle)
	defer broker.Close()

	ws := rt.workspace(broker, broker)
	defer ws.Close()

	h := api.NewHandler(ws, rt.projects, rt.db)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher. Changed notes update the active frame, which
	// publishes the record events.
	g.Go(func() error {
		if !cfg.Events.Watch {
			logger.Info("file watcher disabled")
			return nil
		}
		if err := index.Watch(gCtx, rt.db, rt.store, cfg.Vault.Path, logger, func(kind, path string) {
			ws.HandleNoteEvent(gCtx, kind, path)
		}); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.start(os.Stderr)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	ws := rt.workspace(nil, nil)
	defer ws.Close()

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.projects, ws, rt.db).ServeStdio()
}

// Render activates a project once and writes what its view renders.
// projectQuery is matched by id, name or fuzzy name; an empty viewID selects
// the first view.
func Render(ctx context.Context, projectQuery, viewID string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.start(os.Stderr)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	def, err := rt.projects.Find(projectQuery)
	if err != nil {
		return err
	}

	ws := rt.workspace(nil, nil)
	defer ws.Close()
	if err := ws.Activate(ctx, def.ID, viewID); err != nil {
		return fmt.Errorf("activate %s: %w", def.Name, err)
	}

	out := ws.Render()
	if out == "" {
		return fmt.Errorf("view of %s rendered nothing", def.Name)
	}
	_, err = fmt.Fprintln(app.out, out)
	return err
}

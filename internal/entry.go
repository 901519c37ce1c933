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
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/starford/folio/internal/api"
	"github.com/starford/folio/internal/articleservice"
	"github.com/starford/folio/internal/assets"
	"github.com/starford/folio/internal/categoryservice"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/mcpserver"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/storage"
)

// core is what both the HTTP server and the MCP server are built from.
type core struct {
	logger     *slog.Logger
	store      storage.Provider
	db         *index.DB
	categories *categoryservice.Service
	articles   *articleservice.Service
	assets     *assets.Store
}

func setup(opts []Option) (*application, *core, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_path", cfg.Content.Path),
		slog.String("assets_dir", cfg.Assets.Dir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Content.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create content dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Content.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}

	// Run initial sync.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	cats, err := categoryservice.New(db, db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("load categories: %w", err)
	}

	return app, &core{
		logger:     logger,
		store:      store,
		db:         db,
		categories: cats,
		articles:   articleservice.NewService(store, db, cats),
		assets:     assets.NewStore(cfg.Assets.Dir),
	}, nil
}

func newVerifier(ctx context.Context, cfg AuthConfig) (api.Verifier, error) {
	switch cfg.Mode {
	case AuthModeToken:
		return api.StaticToken(cfg.Token), nil
	case AuthModeJWT:
		return api.NewHMACVerifier(cfg.Secret), nil
	case AuthModeJWKS:
		return api.NewJWKSVerifier(ctx, cfg.JWKSURL)
	default:
		return nil, nil
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, c, err := setup(opts)
	if err != nil {
		return err
	}
	defer c.db.Close()
	cfg, logger := app.config, c.logger

	g, gCtx := errgroup.WithContext(ctx)

	verifier, err := newVerifier(gCtx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.IndexThrottle)
	defer broker.Close()
	c.categories.OnChange(broker.PublishCategoryChange)
	c.articles.OnChange(broker.PublishArticleEvent)

	apiRouter := api.NewRouter(api.Deps{
		Articles:   c.articles,
		Categories: c.categories,
		Assets:     c.assets,
		Auth:       verifier,
		Events:     broker,
	})

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
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	var handler http.Handler = r
	if len(cfg.CORS.Origins) > 0 {
		// CORS wraps the router so pre-flight requests skip auth.
		handler = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORS.Origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "If-Match", "Last-Event-ID"},
			ExposedHeaders:   []string{"ETag"},
			AllowCredentials: true,
		}).Handler(r)
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// The watcher reports edits made outside the API.
	g.Go(func() error {
		err := index.Watch(gCtx, c.db, c.store, logger, broker.PublishArticleEvent)
		if err != nil {
			logger.Error("file watcher stopped", slog.String("error", err.Error()))
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

// errShutdown cancels the group so the watcher exits with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	_, c, err := setup(opts)
	if err != nil {
		return err
	}
	defer c.db.Close()

	// Keep the index current while an agent is attached.
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := index.Watch(watchCtx, c.db, c.store, c.logger, nil); err != nil {
			c.logger.Warn("file watcher stopped", slog.String("error", err.Error()))
		}
	}()

	c.logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.articles, c.categories, c.assets).ServeStdio()
}

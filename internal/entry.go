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
	"golang.org/x/time/rate"

	"github.com/starford/iceberg/internal/api"
	"github.com/starford/iceberg/internal/attachment"
	"github.com/starford/iceberg/internal/attachservice"
	"github.com/starford/iceberg/internal/catalog"
	"github.com/starford/iceberg/internal/mcpserver"
	"github.com/starford/iceberg/internal/outline"
	"github.com/starford/iceberg/internal/sse"
	"github.com/starford/iceberg/internal/storage"
	"github.com/starford/iceberg/internal/webclip"
)

// components are the pieces shared by every run mode.
type components struct {
	store   *attachment.Store
	sources catalog.Sources
	db      *catalog.DB
	clipper *webclip.Fetcher
}

func (c *components) Close() error {
	return c.db.Close()
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

// open builds the store, documents provider, catalog and clipper from cfg
// and runs an initial catalog sync.
func open(ctx context.Context, cfg *Config, logger *slog.Logger) (*components, error) {
	store, err := attachment.NewStore(cfg.Attachments.Path, attachment.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init attachments: %w", err)
	}

	src := catalog.Sources{
		Attachments: store,
		Parser:      outline.NewParser(outline.Options{Plannings: cfg.Outline.Plannings}),
	}
	if cfg.Documents.Enabled() {
		if err := os.MkdirAll(cfg.Documents.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create documents dir: %w", err)
		}
		docs, err := storage.NewFS(cfg.Documents.Path)
		if err != nil {
			return nil, fmt.Errorf("init documents: %w", err)
		}
		src.Documents = docs
	}

	db, err := catalog.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	if err := catalog.Sync(ctx, db, src, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	var clipper *webclip.Fetcher
	if cfg.Clip.Enabled {
		clipper = webclip.NewFetcher(
			webclip.WithRateLimit(rate.Limit(cfg.Clip.Rate), cfg.Clip.Burst),
			webclip.WithMaxBytes(cfg.Clip.MaxBytes),
			webclip.WithTimeout(cfg.Clip.Timeout.Duration),
		)
	}

	return &components{store: store, sources: src, db: db, clipper: clipper}, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("attachments_path", cfg.Attachments.Path),
		slog.String("documents_path", cfg.Documents.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("clip_enabled", cfg.Clip.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := attachservice.NewService(c.store, c.db, c.sources.Parser,
		attachservice.WithPublisher(broker.PublishChange),
		attachservice.WithLogger(logger),
	)
	apiRouter := api.NewRouter(svc, c.clipper, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"catalog unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		if err := catalog.Watch(gCtx, c.db, c.sources, logger, broker.PublishChange); err != nil {
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

		// Stops the watcher once the server is down.
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

// RunMCP serves the MCP tools over stdio. Logs go to stderr since stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	c, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	svc := attachservice.NewService(c.store, c.db, c.sources.Parser, attachservice.WithLogger(logger))

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := catalog.Watch(watchCtx, c.db, c.sources, logger, nil); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc, c.clipper).ServeStdio()
}

// RunSweep removes orphaned attachment files once and writes a report.
func RunSweep(ctx context.Context, dryRun bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	c, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	svc := attachservice.NewService(c.store, c.db, c.sources.Parser, attachservice.WithLogger(logger))
	report, err := svc.Sweep(ctx, attachment.SweepOptions{
		GracePeriod: cfg.Sweep.GracePeriod.Duration,
		DryRun:      dryRun,
	})
	if report != nil {
		writeSweepReport(app.out, report, dryRun)
	}
	return err
}

func writeSweepReport(w io.Writer, r *attachment.SweepReport, dryRun bool) {
	verb := "removed"
	if dryRun {
		verb = "would remove"
	}
	removed := 0
	for _, o := range r.Orphans {
		state := verb
		if !dryRun && !o.Removed {
			state = "failed to remove"
		}
		if o.Removed {
			removed++
		}
		fmt.Fprintf(w, "%-16s %s  %s (%d bytes, %s)\n", state, o.Key, o.Reason, o.Size, o.ModTime.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "scanned %d keys, %d orphans, %d removed\n", r.Scanned, len(r.Orphans), removed)
}

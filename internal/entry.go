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
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mdnorm/internal/aliases"
	"github.com/starford/mdnorm/internal/api"
	"github.com/starford/mdnorm/internal/apperr"
	"github.com/starford/mdnorm/internal/ledger"
	"github.com/starford/mdnorm/internal/mcpserver"
	"github.com/starford/mdnorm/internal/models"
	"github.com/starford/mdnorm/internal/normalizer"
	"github.com/starford/mdnorm/internal/runner"
	"github.com/starford/mdnorm/internal/sse"
	"github.com/starford/mdnorm/internal/storage"
	"github.com/starford/mdnorm/internal/summary"
	"github.com/starford/mdnorm/internal/topics"
	"github.com/starford/mdnorm/internal/watch"
)

// ErrDocumentsFailed is returned by Run in strict mode when any document failed.
var ErrDocumentsFailed = errors.New("documents failed")

// Run performs a single normalisation pass and prints the summary. SIGINT
// or SIGTERM stops dispatching further documents; documents already in
// flight are finished and the partial report is printed.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := prepare(opts)
	if err != nil {
		return err
	}
	svcs, err := build(app.config, logger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := svcs.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if err := summary.New(app.stdout, app.json).Report(report); err != nil {
		return fmt.Errorf("print summary: %w", err)
	}
	return app.strict(report)
}

// Watch runs once, then re-runs whenever the corpus changes, until ctx is
// cancelled or the process receives SIGINT/SIGTERM.
func Watch(ctx context.Context, opts ...Option) error {
	app, logger, err := prepare(opts)
	if err != nil {
		return err
	}
	svcs, err := build(app.config, logger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer := summary.New(app.stdout, app.json)
	trigger := func(ctx context.Context) error {
		report, err := svcs.runner.Run(ctx)
		if err != nil {
			return err
		}
		return printer.Report(report)
	}
	if err := trigger(ctx); err != nil {
		return fmt.Errorf("initial run: %w", err)
	}

	cfg := app.config
	return watch.Watch(ctx, svcs.store.Root(), cfg.Corpus.Extension, cfg.Watch.Debounce, logger, trigger)
}

// Serve watches the corpus and exposes run status over HTTP with live
// events, until ctx is cancelled or the process receives SIGINT/SIGTERM.
func Serve(ctx context.Context, opts ...Option) error {
	app, logger, err := prepare(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker.
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	svcs, err := build(cfg, logger, runner.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer svcs.Close()

	var ready atomic.Bool

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"starting"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api; /api/events streams run progress.
	r.Mount("/api", api.NewRouter(svcs.runner, cfg.Auth.BearerToken(), broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Initial run, then re-run on corpus changes.
	g.Go(func() error {
		if _, err := svcs.runner.Run(gCtx); err != nil {
			return fmt.Errorf("initial run: %w", err)
		}
		ready.Store(true)
		return watch.Watch(gCtx, svcs.store.Root(), cfg.Corpus.Extension, cfg.Watch.Debounce, logger,
			func(ctx context.Context) error {
				_, err := svcs.runner.Run(ctx)
				return err
			})
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stops the watcher when shutdown came from a signal.
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP exposes preview, reference resolution and run history to MCP
// clients over stdio. Nothing is written to the corpus.
func ServeMCP(_ context.Context, opts ...Option) error {
	app, logger, err := prepare(opts)
	if err != nil {
		return err
	}
	svcs, err := build(app.config, logger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	logger.Info("Starting MCP server on stdio", slog.String("version", app.version))
	return mcpserver.New(svcs.runner, app.version).ServeStdio()
}

func prepare(opts []Option) (*application, *slog.Logger, error) {
	app := &application{stdout: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	// Structured JSON logs go to stderr; stdout carries the summary.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

func (a *application) strict(r *models.Report) error {
	if a.config.App.Strict && r.Failed() > 0 {
		return fmt.Errorf("%w: %d of %d", ErrDocumentsFailed, r.Failed(), r.Processed)
	}
	return nil
}

type services struct {
	store  *storage.FS
	ledger *ledger.DB
	runner *runner.Service
}

func (s *services) Close() {
	if s.ledger != nil {
		_ = s.ledger.Close()
	}
}

// build loads the alias and topic sources once, opens the corpus and the
// optional ledger, and wires the runner. Source and corpus problems are
// configuration errors: nothing has been touched yet.
func build(cfg *Config, logger *slog.Logger, extra ...runner.Option) (*services, error) {
	links, err := aliases.Load(cfg.Sources.Links)
	if err != nil {
		return nil, apperr.ConfigError("load link aliases", err)
	}
	known, err := topics.Load(cfg.Sources.Topics)
	if err != nil {
		return nil, apperr.ConfigError("load topics", err)
	}
	store, err := storage.NewFS(cfg.Corpus.Path)
	if err != nil {
		return nil, apperr.ConfigError("open corpus", err)
	}

	logger.Info("Configuration loaded",
		slog.String("corpus_path", store.Root()),
		slog.String("links_source", cfg.Sources.Links),
		slog.Int("aliases", links.Len()),
		slog.String("topics_source", cfg.Sources.Topics),
		slog.Int("topics", known.Len()),
		slog.String("state_path", cfg.State.Path),
		slog.Int("workers", cfg.App.Workers),
		slog.Bool("dry_run", cfg.App.DryRun),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svcs := &services{store: store}
	opts := []runner.Option{runner.WithLogger(logger)}
	if cfg.State.Path != "" {
		db, err := ledger.Open(cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		svcs.ledger = db
		opts = append(opts, runner.WithLedger(db))
	}
	opts = append(opts, extra...)

	svcs.runner = runner.New(store, links, known, runner.Settings{
		Extension: cfg.Corpus.Extension,
		Workers:   cfg.App.Workers,
		DryRun:    cfg.App.DryRun,
		Options: normalizer.Options{
			IgnoreCase:       cfg.Topics.IgnoreCase,
			SkipCode:         cfg.Links.SkipCode,
			ExternalPrefixes: cfg.Links.ExternalPrefixes,
		},
	}, opts...)
	return svcs, nil
}

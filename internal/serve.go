package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/keepsake/internal/api"
	"github.com/starford/keepsake/internal/index"
	"github.com/starford/keepsake/internal/mcpserver"
	"github.com/starford/keepsake/internal/reportservice"
	"github.com/starford/keepsake/internal/sse"
	"github.com/starford/keepsake/internal/storage"
)

const (
	summaryThrottle = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

// RunServe serves the read-only inspection API and keeps the index current
// by re-checking files as they change on disk.
func RunServe(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("download_dir", cfg.Archive.DownloadDir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	m, err := app.loadManifest()
	if err != nil {
		return err
	}
	store, err := app.openStore()
	if err != nil {
		return err
	}
	db, err := app.openIndex()
	if err != nil {
		return err
	}
	defer db.Close()

	pipe, err := app.newPipeline(store)
	if err != nil {
		return err
	}
	defer pipe.close()

	svc := reportservice.NewService(db, pipe.reconciler, m.Records)

	runID, err := db.BeginRun(index.RunWatch, nowUTC())
	if err != nil {
		return err
	}
	defer func() {
		total, needsFix := countCurrent(db)
		app.finishRun(db, runID, map[string]int{"reports": total, "needs_fix": needsFix})
	}()

	if err := index.Sync(ctx, db, store, svc, runID, logger, nil); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(summaryThrottle, func() any {
		total, needsFix := countCurrent(db)
		return map[string]int{"reports": total, "needs_fix": needsFix}
	})
	defer broker.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newRootRouter(svc, cfg.Auth, broker, store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// File watcher with SSE callback.
	g.Go(func() error {
		return index.Watch(gCtx, db, store, svc, runID, logger, func(kind, path string) {
			ev := sse.AssetEvent{Kind: kind, Path: path}
			if kind == index.EventChecked {
				if row, err := db.GetReport(runID, path); err == nil {
					ev.NeedsFix = row.NeedsFix
					ev.Flags = row.Flags
				}
			}
			broker.PublishAssetEvent(ev)
		})
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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

// newRootRouter mounts the inspection API under /api next to the
// unauthenticated health endpoints.
func newRootRouter(svc *reportservice.Service, auth AuthConfig, broker http.Handler, store storage.Provider) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", health)
	r.Get("/health/ready", health)

	r.Mount("/api", api.NewRouter(svc, auth.AuthEnabled(), auth.Token, broker, store.Root()))
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// countCurrent returns the number of current reports and how many need a fix.
func countCurrent(db *index.DB) (total, needsFix int) {
	_, total, _ = db.ListReports("", false, 0, 0)
	_, needsFix, _ = db.ListReports("", true, 0, 0)
	return total, needsFix
}

// RunMCP serves the inspection tools over stdio.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	db, err := app.openIndex()
	if err != nil {
		return err
	}
	defer db.Close()

	app.logger.Info("MCP server starting", slog.String("sqlite_path", app.config.SQLite.Path))
	return mcpserver.New(reportservice.NewService(db, nil, nil), app.version).ServeStdio()
}

// Package internal provides the application initialization and the runtime
// logic behind each keepsake command.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"

	"github.com/starford/keepsake/internal/apperr"
	"github.com/starford/keepsake/internal/checksum"
	"github.com/starford/keepsake/internal/exiftool"
	"github.com/starford/keepsake/internal/extract"
	"github.com/starford/keepsake/internal/geotz"
	"github.com/starford/keepsake/internal/index"
	"github.com/starford/keepsake/internal/manifest"
	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/reconcile"
	"github.com/starford/keepsake/internal/storage"
)

// LockFile is created in the download directory while a run owns it.
const LockFile = ".keepsake.lock"

func newApplication(opts []Option) (*application, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.out == nil {
		app.out = os.Stdout
	}
	if app.version == "" {
		app.version = "dev"
	}
	if app.logger == nil {
		// Logs go to stderr so stdout stays free for summaries and MCP stdio.
		app.logger = newLogger(app.config.App, os.Stderr)
		slog.SetDefault(app.logger)
	}
	return app, nil
}

// newLogger builds a JSON logger, or a text logger when requested or when
// auto mode finds a terminal on w.
func newLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	format := cfg.LogFormat
	if format == "" || format == LogFormatAuto {
		format = LogFormatJSON
		if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			format = LogFormatText
		}
	}
	if format == LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// lockArchive takes the exclusive run lock on the download directory.
func (a *application) lockArchive() (func(), error) {
	dir := a.config.Archive.DownloadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	path := filepath.Join(dir, LockFile)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, apperr.ErrLocked)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			a.logger.Warn("failed to release lock", slog.String("lock", path), slog.String("error", err.Error()))
		}
	}, nil
}

func (a *application) openStore() (*storage.FS, error) {
	if err := os.MkdirAll(a.config.Archive.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	store, err := storage.NewFS(a.config.Archive.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return store, nil
}

func (a *application) openIndex() (*index.DB, error) {
	if dir := filepath.Dir(a.config.SQLite.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	db, err := index.Open(a.config.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	return db, nil
}

// loadManifest reads the manifest and logs every malformed entry.
func (a *application) loadManifest() (*manifest.Manifest, error) {
	m, err := manifest.LoadFile(a.config.Archive.ManifestPath)
	if err != nil {
		return nil, err
	}
	for _, p := range m.Problems {
		a.logger.Warn("manifest entry", slog.String("problem", p.String()))
	}
	a.logger.Info("Manifest loaded",
		slog.String("path", a.config.Archive.ManifestPath),
		slog.Int("records", len(m.Records)),
		slog.Int("downloadable", m.Downloadable()),
		slog.Int("problems", len(m.Problems)))
	return m, nil
}

// tagTool returns the configured tag reader/writer and a release func. The
// default is one stay-open exiftool session.
func (a *application) tagTool() (exiftool.ReadWriter, func(), error) {
	if a.tags != nil {
		return a.tags, func() {}, nil
	}
	tool := exiftool.New(a.config.Exiftool.Binary, a.config.Exiftool.Timeout)
	if err := tool.Available(); err != nil {
		return nil, nil, err
	}
	session, err := tool.Start(a.logger)
	if err != nil {
		return nil, nil, err
	}
	return session, func() {
		if err := session.Close(); err != nil {
			a.logger.Warn("exiftool session close", slog.String("error", err.Error()))
		}
	}, nil
}

func (a *application) localizer() (*geotz.Localizer, error) {
	finder := a.zones
	if finder == nil {
		tzf, err := geotz.NewTZF()
		if err != nil {
			return nil, err
		}
		finder = tzf
	}
	return geotz.NewLocalizer(finder, a.config.Timezone.Default, a.logger)
}

// pipeline bundles the collaborators of reconcile and fix runs.
type pipeline struct {
	store      *storage.FS
	tags       exiftool.ReadWriter
	localizer  *geotz.Localizer
	reconciler *reconcile.Reconciler
	release    func()
}

func (a *application) newPipeline(store *storage.FS) (*pipeline, error) {
	loc, err := a.localizer()
	if err != nil {
		return nil, err
	}
	tags, release, err := a.tagTool()
	if err != nil {
		return nil, err
	}
	return &pipeline{
		store:      store,
		tags:       tags,
		localizer:  loc,
		reconciler: reconcile.New(store, extract.New(tags), loc, a.config.Reconcile.Workers, a.logger),
		release:    release,
	}, nil
}

func (p *pipeline) close() {
	if p.release != nil {
		p.release()
	}
}

// checksums hashes the files behind reports so the watcher can skip them
// until they change.
func (a *application) checksums(store storage.Provider, reports []models.DiscrepancyReport) map[string]string {
	sums := make(map[string]string, len(reports))
	for _, r := range reports {
		abs, err := store.Abs(r.Path)
		if err != nil {
			continue
		}
		sum, err := checksum.File(abs)
		if err != nil {
			a.logger.Warn("checksum failed", slog.String("path", r.Path), slog.String("error", err.Error()))
			continue
		}
		sums[r.Path] = sum
	}
	return sums
}

// finishRun closes a run in the index. Failures to do so are logged: the
// archive itself is already in its final state.
func (a *application) finishRun(db *index.DB, runID string, summary any) {
	if err := db.FinishRun(runID, nowUTC(), summary); err != nil {
		a.logger.Error("finish run", slog.String("run", runID), slog.String("error", err.Error()))
	}
}

// interrupted reports whether err stems from cancellation.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/storage"
)

// Watcher event kinds passed to EventCallback.
const (
	EventChecked = "checked"
	EventRemoved = "removed"
)

// debounce is how long a path must stay quiet before it is re-checked.
// Tag writers and downloads touch a file several times in quick succession.
const debounce = 200 * time.Millisecond

// Rechecker re-reconciles one file of the download directory against the
// manifest.
type Rechecker interface {
	Recheck(ctx context.Context, path string) (*models.DiscrepancyReport, error)
}

// EventCallback is called after a watcher-driven index change.
// kind is one of EventChecked or EventRemoved.
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the download directory and processes
// file change events until ctx is cancelled. Created or written media files
// whose checksum changed are re-checked and stored under runID; removed or
// renamed-away files lose their reports. cb (if non-nil) is called after
// each successful index mutation.
func Watch(ctx context.Context, db *DB, store storage.Provider, checker Rechecker, runID string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			for rel := range pending {
				delete(pending, rel)
				checkChanged(ctx, db, store, checker, runID, rel, logger, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || !isMedia(rel) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(rel)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify fires Rename on the OLD path only. A fix that
				// renames x.jpg to x.mp4 arrives as Rename(x.jpg) then
				// Create(x.mp4).
				delete(pending, rel)
				if delErr := db.DeleteAsset(rel); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: removed", slog.String("path", rel))
				if cb != nil {
					cb(EventRemoved, rel)
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func checkChanged(ctx context.Context, db *DB, store storage.Provider, checker Rechecker, runID, rel string, logger *slog.Logger, cb EventCallback) {
	exists, err := store.Exists(rel)
	if err != nil || !exists {
		return
	}
	known, err := db.GetChecksum(rel)
	if err != nil {
		logger.Warn("watcher: checksum lookup failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	ran, err := recheckFile(ctx, db, store, checker, runID, rel, known)
	if err != nil {
		logger.Warn("watcher: recheck failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if !ran {
		return
	}
	logger.Debug("watcher: checked", slog.String("path", rel))
	if cb != nil {
		cb(EventChecked, rel)
	}
}

// isMedia reports whether rel names a media file directly under the root.
func isMedia(rel string) bool {
	if strings.ContainsRune(rel, filepath.Separator) || strings.HasPrefix(rel, ".") {
		return false
	}
	return models.MediaTypeFromExtension(filepath.Ext(rel)) != models.MediaUnknown
}

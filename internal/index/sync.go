package index

import (
	"context"
	"log/slog"

	"github.com/starford/keepsake/internal/checksum"
	"github.com/starford/keepsake/internal/storage"
)

// Sync walks the download directory and brings the watch run up to date:
//   - new/changed media files are re-checked and upserted
//   - files removed from disk lose their reports and checksum
func Sync(ctx context.Context, db *DB, store storage.Provider, checker Rechecker, runID string, logger *slog.Logger, cb EventCallback) error {
	files, err := store.List()
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		disk[f.Path] = struct{}{}
		ran, err := recheckFile(ctx, db, store, checker, runID, f.Path, checksums[f.Path])
		if err != nil {
			logger.Warn("sync: recheck failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if ran {
			logger.Debug("sync: checked", slog.String("path", f.Path))
			if cb != nil {
				cb(EventChecked, f.Path)
			}
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteAsset(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
				if cb != nil {
					cb(EventRemoved, p)
				}
			}
		}
	}

	return nil
}

// recheckFile re-checks path when its content differs from known and stores
// the report. It reports whether a check ran.
func recheckFile(ctx context.Context, db *DB, store storage.Provider, checker Rechecker, runID, path, known string) (bool, error) {
	abs, err := store.Abs(path)
	if err != nil {
		return false, err
	}
	cs, err := checksum.File(abs)
	if err != nil {
		return false, err
	}
	if cs == known {
		return false, nil
	}
	rep, err := checker.Recheck(ctx, path)
	if err != nil {
		return false, err
	}
	if err := db.UpsertReport(runID, *rep, cs); err != nil {
		return false, err
	}
	return true, nil
}

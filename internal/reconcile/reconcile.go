// Package reconcile compares manifest records against downloaded files.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/keepsake/internal/apperr"
	"github.com/starford/keepsake/internal/extract"
	"github.com/starford/keepsake/internal/geotz"
	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/namer"
	"github.com/starford/keepsake/internal/storage"
)

// Result is the outcome of one reconciliation pass. Reports are in manifest
// order and include assets that need no fix.
type Result struct {
	Reports      []models.DiscrepancyReport `json:"reports"`
	JoinFailures []models.JoinFailure       `json:"join_failures"`
	Errors       []models.Failure           `json:"errors"`
}

// NeedsFix returns the reports with at least one flag set.
func (r *Result) NeedsFix() []models.DiscrepancyReport {
	var out []models.DiscrepancyReport
	for _, rep := range r.Reports {
		if rep.NeedsFix {
			out = append(out, rep)
		}
	}
	return out
}

// Reconciler joins records to files by canonical stem and checks each pair.
type Reconciler struct {
	store     storage.Provider
	extractor *extract.Extractor
	localizer *geotz.Localizer
	workers   int
	logger    *slog.Logger
}

// New creates a Reconciler. workers <= 1 runs sequentially.
func New(store storage.Provider, extractor *extract.Extractor, localizer *geotz.Localizer, workers int, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:     store,
		extractor: extractor,
		localizer: localizer,
		workers:   workers,
		logger:    logger.With(slog.String("component", "reconcile")),
	}
}

// Pair is one successful join of an identity to its file.
type Pair struct {
	ID   models.AssetIdentity
	File models.MediaFile
}

// Join matches identities to files. A stem with several files keeps the one
// whose extension matches the manifest type; the rest are unmanifested.
func Join(ids []models.AssetIdentity, files []models.MediaFile) ([]Pair, []models.JoinFailure) {
	byStem := make(map[string][]models.MediaFile, len(files))
	for _, f := range files {
		byStem[f.Stem] = append(byStem[f.Stem], f)
	}

	var (
		pairs    []Pair
		failures []models.JoinFailure
		used     = make(map[string]bool, len(files))
	)
	for _, id := range ids {
		candidates := byStem[id.Stem]
		if len(candidates) == 0 {
			failures = append(failures, models.JoinFailure{
				Kind:        models.JoinMissingFile,
				Path:        expectedName(id),
				RecordIndex: id.Record.Index,
			})
			continue
		}
		chosen := candidates[0]
		for _, c := range candidates {
			if c.MediaType == id.Record.MediaType {
				chosen = c
				break
			}
		}
		used[chosen.Path] = true
		pairs = append(pairs, Pair{ID: id, File: chosen})
	}
	for _, f := range files {
		if !used[f.Path] {
			failures = append(failures, models.JoinFailure{
				Kind:        models.JoinUnmanifestedFile,
				Path:        f.Path,
				RecordIndex: -1,
			})
		}
	}
	return pairs, failures
}

func expectedName(id models.AssetIdentity) string {
	if ext := id.Record.MediaType.Extension(); ext != "" {
		return id.FileName(ext)
	}
	return id.Stem
}

// Reconcile runs a full pass over records and the archive contents.
// Extraction failures are collected per file and never abort the pass.
func (r *Reconciler) Reconcile(ctx context.Context, records []models.ManifestRecord) (*Result, error) {
	files, err := r.store.List()
	if err != nil {
		return nil, fmt.Errorf("reconcile: list archive: %w", err)
	}
	pairs, joinFailures := Join(namer.AssignAll(records), files)

	reports := make([]*models.DiscrepancyReport, len(pairs))
	errs := make([]*models.Failure, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	if r.workers > 1 {
		g.SetLimit(r.workers)
	} else {
		g.SetLimit(1)
	}
	for i, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep, err := r.checkPair(gctx, p)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("extract failed", slog.String("path", p.File.Path), slog.String("error", err.Error()))
				errs[i] = &models.Failure{Source: p.File.Path, Error: err.Error()}
				return nil
			}
			reports[i] = &rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	res := &Result{JoinFailures: joinFailures}
	for i := range pairs {
		if reports[i] != nil {
			res.Reports = append(res.Reports, *reports[i])
		}
		if errs[i] != nil {
			res.Errors = append(res.Errors, *errs[i])
		}
	}
	r.logger.Info("reconciled",
		slog.Int("reports", len(res.Reports)),
		slog.Int("needs_fix", len(res.NeedsFix())),
		slog.Int("join_failures", len(res.JoinFailures)),
		slog.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// CheckFile reconciles the single archive file at path against records.
// It returns apperr.ErrNotFound when no record owns the file's stem.
func (r *Reconciler) CheckFile(ctx context.Context, records []models.ManifestRecord, path string) (*models.DiscrepancyReport, error) {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	mt := models.MediaTypeFromExtension(ext)
	if mt == models.MediaUnknown {
		return nil, fmt.Errorf("reconcile: %s: not a media file: %w", name, apperr.ErrNotFound)
	}

	for _, id := range namer.AssignAll(records) {
		if id.Stem != stem {
			continue
		}
		ok, err := r.store.Exists(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("reconcile: %s: %w", name, apperr.ErrNotFound)
		}
		rep, err := r.checkPair(ctx, Pair{ID: id, File: models.MediaFile{Path: name, Stem: stem, MediaType: mt}})
		if err != nil {
			return nil, err
		}
		return &rep, nil
	}
	return nil, fmt.Errorf("reconcile: %s: no manifest record: %w", name, apperr.ErrNotFound)
}

func (r *Reconciler) checkPair(ctx context.Context, p Pair) (models.DiscrepancyReport, error) {
	abs, err := r.store.Abs(p.File.Path)
	if err != nil {
		return models.DiscrepancyReport{}, err
	}
	md, err := r.extractor.Extract(ctx, abs)
	if err != nil {
		return models.DiscrepancyReport{}, err
	}
	md.Path = p.File.Path
	return Check(p.ID, p.File, md, r.localizer), nil
}

package correct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/keepsake/internal/exiftool"
	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/storage"
)

// ErrUnknownMediaType is returned for plans whose manifest type is neither
// image nor video.
var ErrUnknownMediaType = errors.New("correct: unknown manifest media type")

// Status is the result of applying one plan.
type Status string

// Plan statuses.
const (
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome records what happened to one plan.
type Outcome struct {
	Plan    models.CorrectionPlan `json:"plan"`
	Status  Status                `json:"status"`
	Renamed bool                  `json:"renamed"`
	Error   string                `json:"error,omitempty"`
}

// Summary counts outcomes of a correction pass.
type Summary struct {
	Planned     int `json:"planned"`
	Applied     int `json:"applied"`
	Renamed     int `json:"renamed"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	ImageErrors int `json:"image_errors"`
	VideoErrors int `json:"video_errors"`
}

// Applier renames files to their manifest extension and rewrites tags.
type Applier struct {
	store  storage.Provider
	writer exiftool.Writer
	logger *slog.Logger
}

// NewApplier creates an Applier.
func NewApplier(store storage.Provider, writer exiftool.Writer, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{store: store, writer: writer, logger: logger.With(slog.String("component", "correct"))}
}

// Apply executes one plan. A rename happens before tags are written; a rename
// collision (apperr.ErrAlreadyExists) or failure aborts the plan.
func (a *Applier) Apply(ctx context.Context, plan models.CorrectionPlan) (renamed bool, err error) {
	if !plan.TargetMediaType.Valid() {
		return false, fmt.Errorf("%w: %s", ErrUnknownMediaType, plan.SourcePath)
	}
	if plan.NeedsRename() {
		if err := a.store.Move(plan.SourcePath, plan.TargetPath); err != nil {
			return false, fmt.Errorf("correct: rename %s: %w", plan.SourcePath, err)
		}
		renamed = true
		a.logger.Info("renamed",
			slog.String("from", plan.SourcePath),
			slog.String("to", plan.TargetPath),
		)
	}

	abs, err := a.store.Abs(plan.TargetPath)
	if err != nil {
		return renamed, err
	}
	if err := a.writer.WriteTags(ctx, abs, TagsFor(plan)); err != nil {
		return renamed, fmt.Errorf("correct: write tags %s: %w", plan.TargetPath, err)
	}
	return renamed, nil
}

// ApplyAll executes plans with up to workers in parallel. Failures are
// logged and counted; only context cancellation stops the pass.
func (a *Applier) ApplyAll(ctx context.Context, plans []models.CorrectionPlan, workers int) ([]Outcome, Summary, error) {
	outcomes := make([]Outcome, len(plans))
	g, gctx := errgroup.WithContext(ctx)
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, plan := range plans {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := Outcome{Plan: plan}
			renamed, err := a.Apply(gctx, plan)
			out.Renamed = renamed
			switch {
			case err == nil:
				out.Status = StatusApplied
			case errors.Is(err, ErrUnknownMediaType):
				out.Status = StatusSkipped
				out.Error = err.Error()
				a.logger.Warn("unknown media type, skipping", slog.String("path", plan.SourcePath))
			default:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				out.Status = StatusFailed
				out.Error = err.Error()
				a.logger.Error("correction failed",
					slog.String("path", plan.SourcePath),
					slog.String("error", err.Error()),
				)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Summary{}, fmt.Errorf("correct: %w", err)
	}

	sum := Summary{Planned: len(plans)}
	for _, o := range outcomes {
		switch o.Status {
		case StatusApplied:
			sum.Applied++
		case StatusFailed:
			sum.Failed++
		case StatusSkipped:
			sum.Skipped++
		}
		if o.Renamed {
			sum.Renamed++
		}
		switch o.Plan.TargetMediaType {
		case models.MediaImage:
			sum.ImageErrors++
		case models.MediaVideo:
			sum.VideoErrors++
		}
	}
	return outcomes, sum, nil
}

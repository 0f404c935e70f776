package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/keepsake/internal/checkpoint"
	"github.com/starford/keepsake/internal/correct"
	"github.com/starford/keepsake/internal/download"
	"github.com/starford/keepsake/internal/index"
	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/reconcile"
	"github.com/starford/keepsake/internal/summary"
)

// progressEvery controls how often download progress is logged.
const progressEvery = 100

func nowUTC() time.Time {
	return time.Now().UTC()
}

// RunDownload fetches every downloadable manifest record into the download
// directory. Already downloaded assets are skipped.
func RunDownload(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	unlock, err := app.lockArchive()
	if err != nil {
		return err
	}
	defer unlock()

	m, err := app.loadManifest()
	if err != nil {
		return err
	}
	store, err := app.openStore()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Archive.CheckpointPath), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	cp, err := checkpoint.Open(cfg.Archive.CheckpointPath)
	if err != nil {
		return err
	}
	defer cp.Close()

	db, err := app.openIndex()
	if err != nil {
		return err
	}
	defer db.Close()

	runID, err := db.BeginRun(index.RunDownload, nowUTC())
	if err != nil {
		return err
	}
	logger := app.logger.With(slog.String("run", runID))
	logger.Info("Download starting",
		slog.String("download_dir", store.Root()),
		slog.Int("checkpointed", cp.Len()),
		slog.Int("concurrency", cfg.Download.Concurrency))

	engine := download.NewEngine(app.client, store, cp, cfg.Download.Options(), logger)
	engine.OnProgress = func(p download.Progress) {
		if p.Done%progressEvery == 0 || p.Done == p.Total {
			logger.Info("progress", slog.Int("done", p.Done), slog.Int("total", p.Total))
		}
	}

	res, runErr := engine.Run(ctx, m.Records)
	if res == nil {
		return runErr
	}
	if err := db.AddFailures(runID, res.Failures); err != nil {
		logger.Error("record failures", slog.String("error", err.Error()))
	}
	app.finishRun(db, runID, res.Stats)
	summary.NewPrinter(app.out).Download(res)

	if runErr != nil {
		return runErr
	}
	logger.Info("Download finished",
		slog.Int("downloaded", res.Stats.Downloaded),
		slog.Int("skipped", res.Stats.Skipped),
		slog.Int("failed", res.Stats.Failed))
	return nil
}

// RunReconcile compares the download directory against the manifest, records
// every report in the index and exports the ones that need a fix.
func RunReconcile(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	unlock, err := app.lockArchive()
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := app.startSession(index.RunReconcile)
	if err != nil {
		return err
	}
	defer sess.close()

	res, err := sess.reconcile(ctx)
	if err != nil {
		return err
	}
	plans := sess.plan(res.NeedsFix())
	if err := writeExport(app.config.Archive.ExportPath, sess.runID, res.NeedsFix(), plans); err != nil {
		return err
	}
	app.finishRun(sess.db, sess.runID, reconcileSummary(res))
	summary.NewPrinter(app.out).Reconcile(res)
	return nil
}

// RunFix reconciles, then renames and retags every file that needs a fix.
// Fixed files are checked again so the index reflects their final state.
func RunFix(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	unlock, err := app.lockArchive()
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := app.startSession(index.RunFix)
	if err != nil {
		return err
	}
	defer sess.close()

	res, err := sess.reconcile(ctx)
	if err != nil {
		return err
	}
	needs := res.NeedsFix()
	plans := sess.plan(needs)
	if err := writeExport(app.config.Archive.ExportPath, sess.runID, needs, plans); err != nil {
		return err
	}

	applier := correct.NewApplier(sess.pipe.store, sess.pipe.tags, sess.logger)
	outcomes, sum, err := applier.ApplyAll(ctx, plans, app.config.Reconcile.Workers)
	if err != nil {
		app.finishRun(sess.db, sess.runID, map[string]any{"reconcile": reconcileSummary(res), "interrupted": true})
		return err
	}

	if err := sess.db.AddCorrections(sess.runID, correctionRows(outcomes)); err != nil {
		sess.logger.Error("record corrections", slog.String("error", err.Error()))
	}
	unresolved := sess.verify(ctx, outcomes)

	app.finishRun(sess.db, sess.runID, map[string]any{
		"reconcile":  reconcileSummary(res),
		"fix":        sum,
		"unresolved": unresolved,
	})

	printer := summary.NewPrinter(app.out)
	printer.Reconcile(res)
	printer.Fix(sum, outcomes)
	if unresolved > 0 {
		sess.logger.Warn("files still need a fix after correction", slog.Int("count", unresolved))
	}
	return nil
}

// session is one reconcile or fix run against the index.
type session struct {
	app     *application
	db      *index.DB
	pipe    *pipeline
	records []models.ManifestRecord
	runID   string
	logger  *slog.Logger
}

func (a *application) startSession(kind index.RunKind) (s *session, err error) {
	m, err := a.loadManifest()
	if err != nil {
		return nil, err
	}
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	db, err := a.openIndex()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()
	pipe, err := a.newPipeline(store)
	if err != nil {
		return nil, err
	}
	runID, err := db.BeginRun(kind, nowUTC())
	if err != nil {
		pipe.close()
		return nil, err
	}
	return &session{
		app:     a,
		db:      db,
		pipe:    pipe,
		records: m.Records,
		runID:   runID,
		logger:  a.logger.With(slog.String("run", runID)),
	}, nil
}

func (s *session) close() {
	s.pipe.close()
	s.db.Close()
}

// reconcile runs a full pass and persists its reports and failures.
func (s *session) reconcile(ctx context.Context) (*reconcile.Result, error) {
	s.logger.Info("Reconcile starting", slog.String("download_dir", s.pipe.store.Root()))
	res, err := s.pipe.reconciler.Reconcile(ctx, s.records)
	if err != nil {
		s.app.finishRun(s.db, s.runID, map[string]bool{"interrupted": interrupted(err)})
		return nil, err
	}
	if err := s.db.SaveReports(s.runID, res.Reports, s.app.checksums(s.pipe.store, res.Reports)); err != nil {
		return nil, fmt.Errorf("record reports: %w", err)
	}
	if err := s.db.AddJoinFailures(s.runID, res.JoinFailures); err != nil {
		return nil, fmt.Errorf("record join failures: %w", err)
	}
	if err := s.db.AddFailures(s.runID, res.Errors); err != nil {
		return nil, fmt.Errorf("record failures: %w", err)
	}
	return res, nil
}

func (s *session) plan(reports []models.DiscrepancyReport) []models.CorrectionPlan {
	planner := correct.NewPlanner(s.pipe.localizer)
	plans := make([]models.CorrectionPlan, 0, len(reports))
	for _, r := range reports {
		plans = append(plans, planner.Plan(r))
	}
	return plans
}

// verify re-checks applied corrections, replaces their reports in the index
// and returns how many still need a fix.
func (s *session) verify(ctx context.Context, outcomes []correct.Outcome) int {
	unresolved := 0
	for _, o := range outcomes {
		if o.Status != correct.StatusApplied {
			continue
		}
		if o.Renamed {
			if err := s.db.DeleteAsset(o.Plan.SourcePath); err != nil {
				s.logger.Warn("drop renamed report", slog.String("path", o.Plan.SourcePath), slog.String("error", err.Error()))
			}
		}
		rep, err := s.pipe.reconciler.CheckFile(ctx, s.records, o.Plan.TargetPath)
		if err != nil {
			s.logger.Warn("verify correction", slog.String("path", o.Plan.TargetPath), slog.String("error", err.Error()))
			unresolved++
			continue
		}
		sums := s.app.checksums(s.pipe.store, []models.DiscrepancyReport{*rep})
		if err := s.db.UpsertReport(s.runID, *rep, sums[rep.Path]); err != nil {
			s.logger.Warn("record verified report", slog.String("path", rep.Path), slog.String("error", err.Error()))
		}
		if rep.NeedsFix {
			unresolved++
		}
	}
	return unresolved
}

func correctionRows(outcomes []correct.Outcome) []index.CorrectionRow {
	rows := make([]index.CorrectionRow, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, index.CorrectionRow{
			Path:       o.Plan.SourcePath,
			TargetPath: o.Plan.TargetPath,
			Status:     string(o.Status),
			Error:      o.Error,
		})
	}
	return rows
}

// reconcileCounts is the run summary stored for reconcile passes.
type reconcileCounts struct {
	Checked      int `json:"checked"`
	NeedsFix     int `json:"needs_fix"`
	JoinFailures int `json:"join_failures"`
	Errors       int `json:"errors"`
}

func reconcileSummary(res *reconcile.Result) reconcileCounts {
	return reconcileCounts{
		Checked:      len(res.Reports),
		NeedsFix:     len(res.NeedsFix()),
		JoinFailures: len(res.JoinFailures),
		Errors:       len(res.Errors),
	}
}

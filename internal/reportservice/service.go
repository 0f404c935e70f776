// Package reportservice exposes persisted runs and discrepancy reports to the
// HTTP API, the MCP server and the download-directory watcher.
package reportservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/keepsake/internal/apperr"
	"github.com/starford/keepsake/internal/index"
	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/reconcile"
)

// RunDetail is a run with its per-table counts.
type RunDetail struct {
	index.RunRow
	Reports      int `json:"reports"`
	NeedsFix     int `json:"needs_fix"`
	Failures     int `json:"failures"`
	JoinFailures int `json:"join_failures"`
}

// FailureList groups the per-asset failures of a run.
type FailureList struct {
	RunID        string                `json:"run_id"`
	Failures     []models.Failure      `json:"failures"`
	JoinFailures []models.JoinFailure  `json:"join_failures"`
	Corrections  []index.CorrectionRow `json:"corrections"`
}

// Service coordinates the index and the reconciler.
type Service struct {
	db         *index.DB
	reconciler *reconcile.Reconciler
	records    []models.ManifestRecord
}

// NewService creates a new report service. reconciler and records may be nil
// when re-checking is not needed.
func NewService(db *index.DB, reconciler *reconcile.Reconciler, records []models.ManifestRecord) *Service {
	return &Service{db: db, reconciler: reconciler, records: records}
}

var _ index.Rechecker = (*Service)(nil)

// ListRuns returns paginated runs, newest first, optionally filtered by kind.
func (s *Service) ListRuns(_ context.Context, kind string, limit, offset int) ([]index.RunRow, int, error) {
	rows, total, err := s.db.ListRuns(index.RunKind(kind), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(rows), total, nil
}

// GetRun returns one run with its counts.
func (s *Service) GetRun(_ context.Context, id string) (*RunDetail, error) {
	run, err := s.db.GetRun(id)
	if err != nil {
		return nil, err
	}
	_, reports, err := s.db.ListReports(id, false, 0, 0)
	if err != nil {
		return nil, err
	}
	_, needs, err := s.db.ListReports(id, true, 0, 0)
	if err != nil {
		return nil, err
	}
	failures, err := s.db.ListFailures(id)
	if err != nil {
		return nil, err
	}
	joins, err := s.db.ListJoinFailures(id)
	if err != nil {
		return nil, err
	}
	return &RunDetail{
		RunRow:       *run,
		Reports:      reports,
		NeedsFix:     needs,
		Failures:     len(failures),
		JoinFailures: len(joins),
	}, nil
}

// ListReports returns paginated reports of a run. An empty runID lists the
// current report of every file across runs.
func (s *Service) ListReports(_ context.Context, runID string, needsFixOnly bool, limit, offset int) ([]index.ReportRow, int, error) {
	if runID != "" {
		if _, err := s.db.GetRun(runID); err != nil {
			return nil, 0, err
		}
	}
	rows, total, err := s.db.ListReports(runID, needsFixOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(rows), total, nil
}

// GetReport returns the report for path, from runID or the most recent one.
func (s *Service) GetReport(_ context.Context, runID, path string) (*index.ReportRow, error) {
	return s.db.GetReport(runID, path)
}

// ListFailures returns the failures, join failures and corrections of a run.
func (s *Service) ListFailures(_ context.Context, runID string) (*FailureList, error) {
	if _, err := s.db.GetRun(runID); err != nil {
		return nil, err
	}
	failures, err := s.db.ListFailures(runID)
	if err != nil {
		return nil, err
	}
	joins, err := s.db.ListJoinFailures(runID)
	if err != nil {
		return nil, err
	}
	corrections, err := s.db.ListCorrections(runID)
	if err != nil {
		return nil, err
	}
	return &FailureList{RunID: runID, Failures: failures, JoinFailures: joins, Corrections: corrections}, nil
}

// ErrRecheckUnavailable is returned by Recheck on a service built without a
// reconciler.
var ErrRecheckUnavailable = errors.New("reportservice: recheck unavailable")

// Recheck reconciles one file of the download directory against the manifest.
func (s *Service) Recheck(ctx context.Context, path string) (*models.DiscrepancyReport, error) {
	if s.reconciler == nil {
		return nil, ErrRecheckUnavailable
	}
	rep, err := s.reconciler.CheckFile(ctx, s.records, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reportservice: recheck %s: %w", path, err)
	}
	return rep, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

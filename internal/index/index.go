package index

import (
	"time"

	"github.com/starford/keepsake/internal/models"
)

// RunIndex defines the interface for run and report persistence.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type RunIndex interface {
	BeginRun(kind RunKind, startedAt time.Time) (string, error)
	FinishRun(id string, finishedAt time.Time, summary any) error
	GetRun(id string) (*RunRow, error)
	LatestRun(kinds ...RunKind) (*RunRow, error)
	ListRuns(kind RunKind, limit, offset int) ([]RunRow, int, error)

	SaveReports(runID string, reports []models.DiscrepancyReport, checksums map[string]string) error
	UpsertReport(runID string, rep models.DiscrepancyReport, checksum string) error
	ListReports(runID string, needsFixOnly bool, limit, offset int) ([]ReportRow, int, error)
	GetReport(runID, path string) (*ReportRow, error)
	DeleteAsset(path string) error

	AddJoinFailures(runID string, failures []models.JoinFailure) error
	ListJoinFailures(runID string) ([]models.JoinFailure, error)
	AddFailures(runID string, failures []models.Failure) error
	ListFailures(runID string) ([]models.Failure, error)
	AddCorrections(runID string, rows []CorrectionRow) error
	ListCorrections(runID string) ([]CorrectionRow, error)

	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies RunIndex at compile time.
var _ RunIndex = (*DB)(nil)

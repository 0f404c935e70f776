package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/keepsake/internal/apperr"
	"github.com/starford/keepsake/internal/models"
)

// RunKind identifies the command that produced a run.
type RunKind string

// Run kinds.
const (
	RunDownload  RunKind = "download"
	RunReconcile RunKind = "reconcile"
	RunFix       RunKind = "fix"
	RunWatch     RunKind = "watch"
)

// RunRow represents a row in the runs table.
type RunRow struct {
	ID         string          `json:"id"`
	Kind       RunKind         `json:"kind"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Summary    json.RawMessage `json:"summary"`
}

// ReportRow is a persisted discrepancy report.
type ReportRow struct {
	RunID     string                   `json:"run_id"`
	Path      string                   `json:"path"`
	NeedsFix  bool                     `json:"needs_fix"`
	Flags     []string                 `json:"flags"`
	Checksum  string                   `json:"checksum,omitempty"`
	CheckedAt time.Time                `json:"checked_at"`
	Report    models.DiscrepancyReport `json:"report"`
}

// CorrectionRow records the outcome of one correction.
type CorrectionRow struct {
	Path       string `json:"path"`
	TargetPath string `json:"target_path"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// BeginRun inserts a new run and returns its id.
func (db *DB) BeginRun(kind RunKind, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(`INSERT INTO runs (id, kind, started_at) VALUES (?, ?, ?)`, id, string(kind), startedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("index: begin run: %w", err)
	}
	return id, nil
}

// FinishRun stamps a run as finished and stores its JSON summary.
func (db *DB) FinishRun(id string, finishedAt time.Time, summary any) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("index: marshal summary: %w", err)
	}
	res, err := db.conn.Exec(`UPDATE runs SET finished_at = ?, summary_json = ? WHERE id = ?`, finishedAt.UTC(), string(data), id)
	if err != nil {
		return fmt.Errorf("index: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("index: finish run %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

const runColumns = `id, kind, started_at, finished_at, summary_json`

func scanRun(s interface{ Scan(...any) error }) (RunRow, error) {
	var (
		r        RunRow
		kind     string
		finished sql.NullTime
		summary  string
	)
	if err := s.Scan(&r.ID, &kind, &r.StartedAt, &finished, &summary); err != nil {
		return RunRow{}, err
	}
	r.Kind = RunKind(kind)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	r.Summary = json.RawMessage(summary)
	return r, nil
}

// GetRun returns one run by id.
func (db *DB) GetRun(id string) (*RunRow, error) {
	r, err := scanRun(db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: run %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get run: %w", err)
	}
	return &r, nil
}

// LatestRun returns the most recently started run of any of the given kinds,
// or of any kind when none are given.
func (db *DB) LatestRun(kinds ...RunKind) (*RunRow, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := make([]any, 0, len(kinds))
	if len(kinds) > 0 {
		query += ` WHERE kind IN (?` + strings.Repeat(`, ?`, len(kinds)-1) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT 1`

	r, err := scanRun(db.conn.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: latest run: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: latest run: %w", err)
	}
	return &r, nil
}

// ListRuns returns runs newest first, optionally filtered by kind, plus the
// total count.
func (db *DB) ListRuns(kind RunKind, limit, offset int) ([]RunRow, int, error) {
	where := ""
	var args []any
	if kind != "" {
		where = ` WHERE kind = ?`
		args = append(args, string(kind))
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count runs: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+runColumns+` FROM runs`+where+
		` ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

const upsertReportSQL = `
	INSERT INTO reports (run_id, path, stem, record_index, media_type, needs_fix, flags, report_json, checksum, checked_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, path) DO UPDATE SET
		stem         = excluded.stem,
		record_index = excluded.record_index,
		media_type   = excluded.media_type,
		needs_fix    = excluded.needs_fix,
		flags        = excluded.flags,
		report_json  = excluded.report_json,
		checksum     = excluded.checksum,
		checked_at   = excluded.checked_at
`

const upsertChecksumSQL = `
	INSERT INTO checksums (path, checksum, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		checksum   = excluded.checksum,
		updated_at = excluded.updated_at
`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertReport(ex execer, runID string, rep models.DiscrepancyReport, checksum string, now time.Time) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("index: marshal report: %w", err)
	}
	_, err = ex.Exec(upsertReportSQL,
		runID, rep.Path, rep.Stem, rep.RecordIndex, string(rep.ExpectedMediaType),
		rep.NeedsFix, strings.Join(rep.Flags(), ","), string(data), checksum, now)
	if err != nil {
		return fmt.Errorf("index: upsert report: %w", err)
	}
	if checksum != "" {
		if _, err := ex.Exec(upsertChecksumSQL, rep.Path, checksum, now); err != nil {
			return fmt.Errorf("index: upsert checksum: %w", err)
		}
	}
	return nil
}

// SaveReports stores a batch of reports for a run in one transaction.
// checksums is keyed by report path and may be nil.
func (db *DB) SaveReports(runID string, reports []models.DiscrepancyReport, checksums map[string]string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := time.Now().UTC()
	for _, rep := range reports {
		if err := upsertReport(tx, runID, rep, checksums[rep.Path], now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertReport inserts or replaces one report of a run.
func (db *DB) UpsertReport(runID string, rep models.DiscrepancyReport, checksum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertReport(tx, runID, rep, checksum, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

const reportColumns = `run_id, path, needs_fix, flags, checksum, checked_at, report_json`

func scanReport(s interface{ Scan(...any) error }) (ReportRow, error) {
	var (
		r     ReportRow
		flags string
		data  string
	)
	if err := s.Scan(&r.RunID, &r.Path, &r.NeedsFix, &flags, &r.Checksum, &r.CheckedAt, &data); err != nil {
		return ReportRow{}, err
	}
	r.Flags = []string{}
	if flags != "" {
		r.Flags = strings.Split(flags, ",")
	}
	if err := json.Unmarshal([]byte(data), &r.Report); err != nil {
		return ReportRow{}, fmt.Errorf("index: decode report %s: %w", r.Path, err)
	}
	return r, nil
}

// currentReports selects the most recently checked report of every path.
const currentReports = `(SELECT * FROM (
	SELECT *, ROW_NUMBER() OVER (PARTITION BY path ORDER BY checked_at DESC, rowid DESC) AS rn
	FROM reports) WHERE rn = 1)`

// ListReports returns the reports of a run ordered by path, plus the total.
// An empty runID lists the current report of every path across all runs.
func (db *DB) ListReports(runID string, needsFixOnly bool, limit, offset int) ([]ReportRow, int, error) {
	from := ` FROM reports WHERE run_id = ?`
	args := []any{runID}
	if runID == "" {
		from = ` FROM ` + currentReports + ` WHERE 1 = 1`
		args = nil
	}
	if needsFixOnly {
		from += ` AND needs_fix = 1`
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count reports: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+reportColumns+from+
		` ORDER BY path LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportRow
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// GetReport returns the report for path in a run. An empty runID selects the
// most recently checked report for path across all runs.
func (db *DB) GetReport(runID, path string) (*ReportRow, error) {
	var row *sql.Row
	if runID == "" {
		row = db.conn.QueryRow(`SELECT `+reportColumns+` FROM reports WHERE path = ?
			ORDER BY checked_at DESC, rowid DESC LIMIT 1`, path)
	} else {
		row = db.conn.QueryRow(`SELECT `+reportColumns+` FROM reports WHERE run_id = ? AND path = ?`, runID, path)
	}
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: report %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get report: %w", err)
	}
	return &r, nil
}

// DeleteAsset removes every report and the stored checksum for path.
func (db *DB) DeleteAsset(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM reports WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete reports: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM checksums WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete checksum: %w", err)
	}
	return tx.Commit()
}

// AddJoinFailures records manifest/file join failures for a run.
func (db *DB) AddJoinFailures(runID string, failures []models.JoinFailure) error {
	return db.insertBatch(`INSERT INTO join_failures (run_id, kind, path, record_index) VALUES (?, ?, ?, ?)`,
		len(failures), func(i int) []any {
			f := failures[i]
			return []any{runID, string(f.Kind), f.Path, f.RecordIndex}
		})
}

// ListJoinFailures returns the join failures of a run.
func (db *DB) ListJoinFailures(runID string) ([]models.JoinFailure, error) {
	rows, err := db.conn.Query(`SELECT kind, path, record_index FROM join_failures WHERE run_id = ? ORDER BY path`, runID)
	if err != nil {
		return nil, fmt.Errorf("index: list join failures: %w", err)
	}
	defer rows.Close()

	out := []models.JoinFailure{}
	for rows.Next() {
		var (
			f    models.JoinFailure
			kind string
		)
		if err := rows.Scan(&kind, &f.Path, &f.RecordIndex); err != nil {
			return nil, err
		}
		f.Kind = models.JoinFailureKind(kind)
		out = append(out, f)
	}
	return out, rows.Err()
}

// AddFailures records per-asset failures for a run.
func (db *DB) AddFailures(runID string, failures []models.Failure) error {
	return db.insertBatch(`INSERT INTO failures (run_id, source, url, error) VALUES (?, ?, ?, ?)`,
		len(failures), func(i int) []any {
			f := failures[i]
			return []any{runID, f.Source, f.URL, f.Error}
		})
}

// ListFailures returns the failures of a run in insertion order.
func (db *DB) ListFailures(runID string) ([]models.Failure, error) {
	rows, err := db.conn.Query(`SELECT source, url, error FROM failures WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("index: list failures: %w", err)
	}
	defer rows.Close()

	out := []models.Failure{}
	for rows.Next() {
		var f models.Failure
		if err := rows.Scan(&f.Source, &f.URL, &f.Error); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// AddCorrections records correction outcomes for a run.
func (db *DB) AddCorrections(runID string, corrections []CorrectionRow) error {
	return db.insertBatch(`INSERT INTO corrections (run_id, path, target_path, status, error) VALUES (?, ?, ?, ?, ?)`,
		len(corrections), func(i int) []any {
			c := corrections[i]
			return []any{runID, c.Path, c.TargetPath, c.Status, c.Error}
		})
}

// ListCorrections returns the correction outcomes of a run.
func (db *DB) ListCorrections(runID string) ([]CorrectionRow, error) {
	rows, err := db.conn.Query(`SELECT path, target_path, status, error FROM corrections WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("index: list corrections: %w", err)
	}
	defer rows.Close()

	out := []CorrectionRow{}
	for rows.Next() {
		var c CorrectionRow
		if err := rows.Scan(&c.Path, &c.TargetPath, &c.Status, &c.Error); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) insertBatch(query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.Exec(args(i)...); err != nil {
			return fmt.Errorf("index: insert: %w", err)
		}
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a file, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM checksums WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns the stored checksum of every tracked file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM checksums`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

package index

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/keepsake/internal/apperr"
	"github.com/starford/keepsake/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "keepsake-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func beginRun(t *testing.T, db *DB, kind RunKind, at time.Time) string {
	t.Helper()
	id, err := db.BeginRun(kind, at)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	return id
}

func report(path string, needsFix bool) models.DiscrepancyReport {
	return models.DiscrepancyReport{
		Path:              path,
		Stem:              path[:len(path)-4],
		RecordIndex:       3,
		ExpectedMediaType: models.MediaImage,
		ExpectedUTC:       time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
		MediaTypeMismatch: needsFix,
		NeedsFix:          needsFix,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"runs", "reports", "join_failures", "failures", "corrections", "checksums"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestRuns_Lifecycle(t *testing.T) {
	db := testDB(t)
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	dl := beginRun(t, db, RunDownload, t0)
	rc := beginRun(t, db, RunReconcile, t0.Add(time.Minute))

	if err := db.FinishRun(dl, t0.Add(30*time.Second), map[string]int{"downloaded": 7}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err := db.GetRun(dl)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Kind != RunDownload || run.FinishedAt == nil || string(run.Summary) != `{"downloaded":7}` {
		t.Errorf("run = %+v summary=%s", run, run.Summary)
	}

	runs, total, err := db.ListRuns("", 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 2 || len(runs) != 2 || runs[0].ID != rc {
		t.Errorf("runs = %+v total=%d", runs, total)
	}
	if runs[0].FinishedAt != nil {
		t.Error("unfinished run should have no finished_at")
	}

	runs, total, _ = db.ListRuns(RunDownload, 10, 0)
	if total != 1 || runs[0].ID != dl {
		t.Errorf("filtered runs = %+v", runs)
	}

	latest, err := db.LatestRun(RunDownload, RunFix)
	if err != nil || latest.ID != dl {
		t.Errorf("LatestRun = %+v, %v", latest, err)
	}
	if latest, _ := db.LatestRun(); latest.ID != rc {
		t.Errorf("LatestRun(any) = %s, want %s", latest.ID, rc)
	}
}

func TestRuns_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetRun("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetRun err = %v", err)
	}
	if _, err := db.LatestRun(RunFix); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("LatestRun err = %v", err)
	}
	if err := db.FinishRun("nope", time.Now(), nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("FinishRun err = %v", err)
	}
}

func TestReports_SaveAndList(t *testing.T) {
	db := testDB(t)
	run := beginRun(t, db, RunReconcile, time.Now())

	reps := []models.DiscrepancyReport{report("b.jpg", true), report("a.jpg", false), report("c.jpg", true)}
	if err := db.SaveReports(run, reps, map[string]string{"a.jpg": "aaa"}); err != nil {
		t.Fatalf("SaveReports: %v", err)
	}

	all, total, err := db.ListReports(run, false, 10, 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if total != 3 || all[0].Path != "a.jpg" || len(all[0].Flags) != 0 {
		t.Errorf("all = %+v total=%d", all, total)
	}

	needs, total, _ := db.ListReports(run, true, 1, 0)
	if total != 2 || len(needs) != 1 || needs[0].Path != "b.jpg" {
		t.Errorf("needs = %+v total=%d", needs, total)
	}
	if !needs[0].NeedsFix || len(needs[0].Flags) != 1 || needs[0].Flags[0] != "media_type" {
		t.Errorf("needs[0] = %+v", needs[0])
	}
	if !needs[0].Report.ExpectedUTC.Equal(reps[0].ExpectedUTC) || needs[0].Report.RecordIndex != 3 {
		t.Errorf("report round trip = %+v", needs[0].Report)
	}

	if cs, _ := db.GetChecksum("a.jpg"); cs != "aaa" {
		t.Errorf("checksum = %q", cs)
	}
	if cs, _ := db.GetChecksum("b.jpg"); cs != "" {
		t.Errorf("checksum for b = %q, want empty", cs)
	}
}

func TestReports_GetLatestAcrossRuns(t *testing.T) {
	db := testDB(t)
	first := beginRun(t, db, RunReconcile, time.Now())
	second := beginRun(t, db, RunWatch, time.Now())

	_ = db.UpsertReport(first, report("a.jpg", true), "1")
	time.Sleep(10 * time.Millisecond)
	_ = db.UpsertReport(second, report("a.jpg", false), "2")

	got, err := db.GetReport("", "a.jpg")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.RunID != second || got.NeedsFix {
		t.Errorf("latest = %+v", got)
	}

	got, err = db.GetReport(first, "a.jpg")
	if err != nil || !got.NeedsFix {
		t.Errorf("first-run report = %+v, %v", got, err)
	}

	if _, err := db.GetReport(first, "missing.jpg"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestDeleteAsset(t *testing.T) {
	db := testDB(t)
	run := beginRun(t, db, RunReconcile, time.Now())
	_ = db.UpsertReport(run, report("a.jpg", true), "abc")

	if err := db.DeleteAsset("a.jpg"); err != nil {
		t.Fatalf("DeleteAsset: %v", err)
	}
	if _, err := db.GetReport("", "a.jpg"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("report still present: %v", err)
	}
	sums, _ := db.AllChecksums()
	if len(sums) != 0 {
		t.Errorf("checksums = %v", sums)
	}
}

func TestFailuresJoinsCorrections(t *testing.T) {
	db := testDB(t)
	run := beginRun(t, db, RunFix, time.Now())

	if err := db.AddFailures(run, []models.Failure{
		{Source: "2023-06-01_12-00-00", URL: "https://x/1", Error: "status 410"},
		{Source: "2023-06-01_12-00-01", Error: "boom"},
	}); err != nil {
		t.Fatalf("AddFailures: %v", err)
	}
	if err := db.AddFailures(run, nil); err != nil {
		t.Fatalf("AddFailures(nil): %v", err)
	}
	failures, err := db.ListFailures(run)
	if err != nil || len(failures) != 2 || failures[0].URL != "https://x/1" {
		t.Errorf("failures = %+v, %v", failures, err)
	}

	_ = db.AddJoinFailures(run, []models.JoinFailure{
		{Kind: models.JoinUnmanifestedFile, Path: "z.jpg", RecordIndex: -1},
		{Kind: models.JoinMissingFile, Path: "a.mp4", RecordIndex: 4},
	})
	joins, _ := db.ListJoinFailures(run)
	if len(joins) != 2 || joins[0].Path != "a.mp4" || joins[0].Kind != models.JoinMissingFile || joins[1].RecordIndex != -1 {
		t.Errorf("joins = %+v", joins)
	}

	_ = db.AddCorrections(run, []CorrectionRow{{Path: "a.jpg", TargetPath: "a.mp4", Status: "applied"}})
	corr, _ := db.ListCorrections(run)
	if len(corr) != 1 || corr[0].TargetPath != "a.mp4" {
		t.Errorf("corrections = %+v", corr)
	}

	empty, _ := db.ListFailures("other")
	if empty == nil || len(empty) != 0 {
		t.Errorf("unknown run failures = %#v, want empty slice", empty)
	}
}

func TestReports_CurrentView(t *testing.T) {
	db := testDB(t)
	first := beginRun(t, db, RunReconcile, time.Now())
	_ = db.SaveReports(first, []models.DiscrepancyReport{report("a.jpg", true), report("b.jpg", true)}, nil)
	time.Sleep(10 * time.Millisecond)
	watch := beginRun(t, db, RunWatch, time.Now())
	_ = db.UpsertReport(watch, report("a.jpg", false), "fixed")

	current, total, err := db.ListReports("", false, 10, 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if total != 2 || current[0].RunID != watch || current[1].RunID != first {
		t.Errorf("current = %+v total=%d", current, total)
	}

	needs, total, _ := db.ListReports("", true, 10, 0)
	if total != 1 || needs[0].Path != "b.jpg" {
		t.Errorf("needs = %+v", needs)
	}
}

package reportservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/keepsake/internal/apperr"
	"github.com/starford/keepsake/internal/extract"
	"github.com/starford/keepsake/internal/index"
	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/reconcile"
	"github.com/starford/keepsake/internal/storage"
	"github.com/starford/keepsake/internal/testutil"
)

var (
	capturedAt = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	boulder    = models.Coordinates{Lat: 40.015, Lon: -105.2705}
)

func setup(t *testing.T) (*Service, *index.DB, storage.Provider) {
	t.Helper()
	db := testutil.TestDB(t)
	_, store := testutil.TestArchive(t)
	loc := testutil.Localizer(t, testutil.Zones{boulder: "America/Denver"})
	rec := reconcile.New(store, extract.New(testutil.NewFakeExif()), loc, 1, nil)
	records := []models.ManifestRecord{testutil.Record(0, capturedAt, models.MediaImage, boulder.Lat, boulder.Lon)}
	return NewService(db, rec, records), db, store
}

func TestGetRun_Counts(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()

	run, _ := db.BeginRun(index.RunReconcile, time.Now())
	_ = db.SaveReports(run, []models.DiscrepancyReport{
		{Path: "a.jpg", NeedsFix: true, MediaTypeMismatch: true},
		{Path: "b.jpg"},
	}, nil)
	_ = db.AddJoinFailures(run, []models.JoinFailure{{Kind: models.JoinMissingFile, Path: "c.jpg", RecordIndex: 2}})

	detail, err := svc.GetRun(ctx, run)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if detail.Reports != 2 || detail.NeedsFix != 1 || detail.JoinFailures != 1 || detail.Failures != 0 {
		t.Errorf("detail = %+v", detail)
	}

	if _, err := svc.GetRun(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetRun(missing) err = %v", err)
	}
}

func TestListRuns_Empty(t *testing.T) {
	svc, _, _ := setup(t)
	runs, total, err := svc.ListRuns(context.Background(), "", 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if runs == nil || total != 0 {
		t.Errorf("runs = %#v total = %d", runs, total)
	}
}

func TestListReports(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	run, _ := db.BeginRun(index.RunReconcile, time.Now())
	_ = db.SaveReports(run, []models.DiscrepancyReport{{Path: "a.jpg", NeedsFix: true}, {Path: "b.jpg"}}, nil)

	rows, total, err := svc.ListReports(ctx, run, true, 10, 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if total != 1 || rows[0].Path != "a.jpg" {
		t.Errorf("rows = %+v", rows)
	}

	rows, total, _ = svc.ListReports(ctx, "", false, 10, 0)
	if total != 2 || len(rows) != 2 {
		t.Errorf("current rows = %+v", rows)
	}

	if _, _, err := svc.ListReports(ctx, "missing", false, 10, 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown run err = %v", err)
	}
}

func TestListFailures(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	run, _ := db.BeginRun(index.RunFix, time.Now())
	_ = db.AddFailures(run, []models.Failure{{Source: "a.jpg", Error: "exiftool: exit status 1"}})
	_ = db.AddCorrections(run, []index.CorrectionRow{{Path: "a.jpg", TargetPath: "a.jpg", Status: "failed", Error: "boom"}})

	list, err := svc.ListFailures(ctx, run)
	if err != nil {
		t.Fatalf("ListFailures: %v", err)
	}
	if len(list.Failures) != 1 || len(list.Corrections) != 1 || list.JoinFailures == nil {
		t.Errorf("list = %+v", list)
	}
	if _, err := svc.ListFailures(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown run err = %v", err)
	}
}

func TestRecheck(t *testing.T) {
	svc, _, store := setup(t)
	ctx := context.Background()

	testutil.WriteMedia(t, store, "2023-06-01_12-00-00.jpg",
		testutil.ImageTags("2023:06:01 06:00:00", "-06:00", boulder.Lat, boulder.Lon))
	rep, err := svc.Recheck(ctx, "2023-06-01_12-00-00.jpg")
	if err != nil {
		t.Fatalf("Recheck: %v", err)
	}
	if rep.NeedsFix {
		t.Errorf("clean file flagged: %v", rep.Flags())
	}

	testutil.WriteMedia(t, store, "2023-06-01_12-00-00.mp4",
		testutil.VideoTags("2023:06:01 12:00:00", "-06:00", boulder.Lat, boulder.Lon))
	rep, err = svc.Recheck(ctx, "2023-06-01_12-00-00.mp4")
	if err != nil {
		t.Fatalf("Recheck mp4: %v", err)
	}
	if !rep.MediaTypeMismatch {
		t.Error("video file for an image record should flag media type")
	}

	testutil.WriteMedia(t, store, "1999-01-01_00-00-00.jpg", nil)
	if _, err := svc.Recheck(ctx, "1999-01-01_00-00-00.jpg"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unmanifested err = %v", err)
	}
}

func TestRecheck_Unavailable(t *testing.T) {
	svc := NewService(testutil.TestDB(t), nil, nil)
	if _, err := svc.Recheck(context.Background(), "a.jpg"); !errors.Is(err, ErrRecheckUnavailable) {
		t.Errorf("err = %v", err)
	}
}

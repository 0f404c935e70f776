package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/keepsake/internal/apperr"
	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/storage"
)

// stubChecker flags every file whose content contains "bad" and counts calls.
type stubChecker struct {
	store storage.Provider
	mu    sync.Mutex
	calls map[string]int
}

func (c *stubChecker) Recheck(_ context.Context, path string) (*models.DiscrepancyReport, error) {
	c.mu.Lock()
	c.calls[path]++
	c.mu.Unlock()

	if strings.HasPrefix(path, "stray") {
		return nil, apperr.ErrNotFound
	}
	abs, _ := c.store.Abs(path)
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	bad := strings.Contains(string(data), "bad")
	return &models.DiscrepancyReport{Path: path, MediaTypeMismatch: bad, NeedsFix: bad}, nil
}

func (c *stubChecker) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[path]
}

// watcherTestEnv sets up a download dir, storage, DB and watch run for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB, *stubChecker, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	run := beginRun(t, db, RunWatch, time.Now())
	return dir, store, db, &stubChecker{store: store, calls: map[string]int{}}, run
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestSync(t *testing.T) {
	dir, store, db, checker, run := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("good"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "b.mp4"), []byte("bad"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	var events []string
	cb := func(kind, path string) { events = append(events, kind+":"+path) }
	if err := Sync(context.Background(), db, store, checker, run, quietLogger(), cb); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("events = %v", events)
	}
	needs, _, _ := db.ListReports(run, true, 10, 0)
	if len(needs) != 1 || needs[0].Path != "b.mp4" {
		t.Errorf("needs = %+v", needs)
	}

	// Unchanged content is not re-checked.
	_ = Sync(context.Background(), db, store, checker, run, quietLogger(), nil)
	if checker.count("a.jpg") != 1 {
		t.Errorf("a.jpg checked %d times", checker.count("a.jpg"))
	}

	// Removed files lose their reports.
	_ = os.Remove(filepath.Join(dir, "a.jpg"))
	events = nil
	_ = Sync(context.Background(), db, store, checker, run, quietLogger(), cb)
	if len(events) != 1 || events[0] != "removed:a.jpg" {
		t.Errorf("events = %v", events)
	}
	if _, err := db.GetReport(run, "a.jpg"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("report for removed file: %v", err)
	}
}

func TestSync_RecheckErrorContinues(t *testing.T) {
	dir, store, db, checker, run := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(dir, "stray.jpg"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "z.jpg"), []byte("x"), 0o644)

	if err := Sync(context.Background(), db, store, checker, run, quietLogger(), nil); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, err := db.GetReport(run, "z.jpg"); err != nil {
		t.Errorf("z.jpg not stored: %v", err)
	}
}

func TestWatcher_NewFileChecked(t *testing.T) {
	dir, store, db, checker, run := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, checker, run, quietLogger(), func(kind, path string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "new.jpg"), []byte("bad"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, ".keepsake-tmp-123"), []byte("partial"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		rep, err := db.GetReport(run, "new.jpg")
		return err == nil && rep.NeedsFix
	}, "new file not checked by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "checked:new.jpg" {
				return true
			}
		}
		return false
	}, "expected checked:new.jpg callback")

	if checker.count(".keepsake-tmp-123") != 0 {
		t.Error("temp file should be ignored")
	}
}

func TestWatcher_RewriteRechecks(t *testing.T) {
	dir, store, db, checker, run := watcherTestEnv(t)
	path := filepath.Join(dir, "fix.jpg")
	_ = os.WriteFile(path, []byte("bad"), 0o644)
	_ = Sync(context.Background(), db, store, checker, run, quietLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, db, store, checker, run, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(path, []byte("good"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		rep, err := db.GetReport(run, "fix.jpg")
		return err == nil && !rep.NeedsFix
	}, "rewritten file not re-checked")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	dir, store, db, checker, run := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(dir, "del.jpg"), []byte("good"), 0o644)
	_ = Sync(context.Background(), db, store, checker, run, quietLogger(), nil)

	cs, _ := db.GetChecksum("del.jpg")
	if cs == "" {
		t.Fatal("precondition: file should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, checker, run, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(dir, "del.jpg"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("del.jpg")
		return cs == ""
	}, "deleted file still in index")
}

func TestWatcher_RenameMovesReport(t *testing.T) {
	dir, store, db, checker, run := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(dir, "old.jpg"), []byte("bad"), 0o644)
	_ = Sync(context.Background(), db, store, checker, run, quietLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, checker, run, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(dir, "old.jpg"), filepath.Join(dir, "old.mp4"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("old.jpg")
		newCS, _ := db.GetChecksum("old.mp4")
		return oldCS == "" && newCS != ""
	}, "rename: old path should be removed and new path checked")
}

func TestIsMedia(t *testing.T) {
	cases := map[string]bool{
		"a.jpg":                       true,
		"a.MP4":                       true,
		"a.png":                       false,
		".keepsake-tmp-1":             false,
		".keepsake.lock":              false,
		filepath.Join("sub", "b.jpg"): false,
	}
	for in, want := range cases {
		if got := isMedia(in); got != want {
			t.Errorf("isMedia(%q) = %v, want %v", in, got, want)
		}
	}
}

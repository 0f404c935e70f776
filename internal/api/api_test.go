package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/keepsake/internal/index"
	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/reportservice"
	"github.com/starford/keepsake/internal/testutil"
)

type env struct {
	db       *index.DB
	router   http.Handler
	mediaDir string
	runID    string
}

// testEnv sets up a temp download dir, SQLite DB with one reconcile run,
// service, and router. An empty token means auth is disabled.
func testEnv(t *testing.T, token string) env {
	t.Helper()
	return testEnvWithSSE(t, token, nil)
}

func testEnvWithSSE(t *testing.T, token string, sseHandler http.Handler) env {
	t.Helper()
	db := testutil.TestDB(t)
	mediaDir, _ := testutil.TestArchive(t)

	run, err := db.BeginRun(index.RunReconcile, time.Now())
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	err = db.SaveReports(run, []models.DiscrepancyReport{
		{Path: "2023-06-01_12-00-00-A.jpg", ExpectedMediaType: models.MediaImage},
		{Path: "2023-06-01_12-00-00-B.jpg", ExpectedMediaType: models.MediaVideo, MediaTypeMismatch: true, NeedsFix: true},
	}, nil)
	if err != nil {
		t.Fatalf("SaveReports: %v", err)
	}
	_ = db.AddFailures(run, []models.Failure{{Source: "2023-06-02_08-30-00", URL: "https://x/1", Error: "status 410"}})
	_ = db.FinishRun(run, time.Now(), map[string]int{"reports": 2})

	svc := reportservice.NewService(db, nil, nil)
	router := NewRouter(svc, token != "", token, sseHandler, mediaDir)
	return env{db: db, router: router, mediaDir: mediaDir, runID: run}
}

func get(t *testing.T, router http.Handler, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestListRuns(t *testing.T) {
	e := testEnv(t, "")
	w := get(t, e.router, "/runs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp RunListResponse
	decode(t, w, &resp)
	if resp.Total != 1 || resp.Runs[0].ID != e.runID || resp.Runs[0].Kind != index.RunReconcile {
		t.Errorf("resp = %+v", resp)
	}

	w = get(t, e.router, "/runs?kind=download", "")
	decode(t, w, &resp)
	if resp.Total != 0 || resp.Runs == nil {
		t.Errorf("filtered resp = %+v", resp)
	}
}

func TestGetRun(t *testing.T) {
	e := testEnv(t, "")
	w := get(t, e.router, "/runs/"+e.runID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var run RunDetail
	decode(t, w, &run)
	if run.Reports != 2 || run.NeedsFix != 1 || run.Failures != 1 || run.FinishedAt == nil {
		t.Errorf("run = %+v", run)
	}

	if w := get(t, e.router, "/runs/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing run = %d, want 404", w.Code)
	}
}

func TestListRunFailures(t *testing.T) {
	e := testEnv(t, "")
	w := get(t, e.router, "/runs/"+e.runID+"/failures", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list FailureList
	decode(t, w, &list)
	if len(list.Failures) != 1 || list.Failures[0].Error != "status 410" {
		t.Errorf("list = %+v", list)
	}
}

func TestListReports_NeedsFix(t *testing.T) {
	e := testEnv(t, "")
	w := get(t, e.router, "/reports?needs_fix=true&run="+e.runID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ReportListResponse
	decode(t, w, &resp)
	if resp.Total != 1 || resp.Reports[0].Path != "2023-06-01_12-00-00-B.jpg" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Reports[0].Flags) != 1 || resp.Reports[0].Flags[0] != "media_type" {
		t.Errorf("flags = %v", resp.Reports[0].Flags)
	}

	w = get(t, e.router, "/reports", "")
	decode(t, w, &resp)
	if resp.Total != 2 {
		t.Errorf("current total = %d, want 2", resp.Total)
	}
}

func TestListReports_BadInput(t *testing.T) {
	e := testEnv(t, "")
	if w := get(t, e.router, "/reports?needs_fix=maybe", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad needs_fix = %d, want 400", w.Code)
	}
	if w := get(t, e.router, "/reports?run=nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown run = %d, want 404", w.Code)
	}
}

func TestGetReport(t *testing.T) {
	e := testEnv(t, "")
	w := get(t, e.router, "/reports/2023-06-01_12-00-00-B.jpg", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var row index.ReportRow
	decode(t, w, &row)
	if !row.NeedsFix || row.Report.ExpectedMediaType != models.MediaVideo || row.RunID != e.runID {
		t.Errorf("row = %+v", row)
	}

	if w := get(t, e.router, "/reports/missing.jpg", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing report = %d, want 404", w.Code)
	}
}

func TestPagination(t *testing.T) {
	cases := []struct {
		query         string
		limit, offset int
	}{
		{"", defaultLimit, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=-1&offset=-3", defaultLimit, 0},
		{"?limit=999999", maxLimit, 0},
	}
	for _, c := range cases {
		limit, offset := pagination(httptest.NewRequest(http.MethodGet, "/runs"+c.query, nil))
		if limit != c.limit || offset != c.offset {
			t.Errorf("pagination(%q) = %d, %d", c.query, limit, offset)
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")
	if w := get(t, e.router, "/runs", "secret123"); w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")
	w := get(t, e.router, "/runs", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")
	if w := get(t, e.router, "/runs", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "")
	if w := get(t, e.router, "/runs", ""); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvWithSSE(t, "secret", blockingSSE)
	if w := get(t, e.router, "/events", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvWithSSE(t, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

// Media tests.

func TestServeMedia(t *testing.T) {
	e := testEnv(t, "")
	if err := os.WriteFile(filepath.Join(e.mediaDir, "2023-06-01_12-00-00.jpg"), []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := get(t, e.router, "/media/2023-06-01_12-00-00.jpg", "")
	if w.Code != http.StatusOK || w.Body.String() != "jpeg" {
		t.Errorf("serve = %d %q", w.Code, w.Body.String())
	}
}

func TestServeMedia_NotFound(t *testing.T) {
	e := testEnv(t, "")
	if w := get(t, e.router, "/media/missing.jpg", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", w.Code)
	}
}

func TestServeMedia_Rejected(t *testing.T) {
	e := testEnv(t, "")
	_ = os.WriteFile(filepath.Join(e.mediaDir, ".keepsake.lock"), nil, 0o644)
	for _, name := range []string{".keepsake.lock", "notes.txt", "..%2Fsecret.jpg"} {
		if w := get(t, e.router, "/media/"+name, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", name, w.Code)
		}
	}
}

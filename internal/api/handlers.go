package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/keepsake/internal/apperr"
	"github.com/starford/keepsake/internal/reportservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *reportservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *reportservice.Service) *Handler {
	return &Handler{svc: svc}
}

// reportPath extracts the file path from the URL (everything after /reports/).
// Supports encoded names from generated clients.
func reportPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeError maps service errors onto HTTP responses.
func writeError(w http.ResponseWriter, op string, err error, attrs ...any) {
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// ListRuns handles GET /runs.
//
//	@Summary		List runs, newest first
//	@Tags			runs
//	@Produce		json
//	@Param			kind	query		string	false	"Run kind"	Enums(download, reconcile, fix, watch)
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	RunListResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	runs, total, err := h.svc.ListRuns(r.Context(), r.URL.Query().Get("kind"), limit, offset)
	if err != nil {
		writeError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs, Total: total})
}

// GetRun handles GET /runs/{id}.
//
//	@Summary		Get one run with its counts
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run id"
//	@Success		200	{object}	RunDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.svc.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, "get run", err, slog.String("run", id))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListRunFailures handles GET /runs/{id}/failures.
//
//	@Summary		List failures, join failures and corrections of a run
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run id"
//	@Success		200	{object}	FailureList
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{id}/failures [get]
func (h *Handler) ListRunFailures(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	list, err := h.svc.ListFailures(r.Context(), id)
	if err != nil {
		writeError(w, "list failures", err, slog.String("run", id))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListReports handles GET /reports.
//
//	@Summary		List discrepancy reports
//	@Tags			reports
//	@Produce		json
//	@Param			run			query		string	false	"Run id; omitted lists the current report of every file"
//	@Param			needs_fix	query		bool	false	"Only reports that need a fix"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	ReportListResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reports [get]
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	needsFix := false
	if v := q.Get("needs_fix"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("needs_fix must be a boolean"))
			return
		}
		needsFix = b
	}
	limit, offset := pagination(r)
	runID := q.Get("run")

	reports, total, err := h.svc.ListReports(r.Context(), runID, needsFix, limit, offset)
	if err != nil {
		writeError(w, "list reports", err, slog.String("run", runID))
		return
	}
	writeJSON(w, http.StatusOK, ReportListResponse{RunID: runID, Reports: reports, Total: total})
}

// GetReport handles GET /reports/*.
//
//	@Summary		Get the report of one file
//	@Tags			reports
//	@Produce		json
//	@Param			path	path		string	true	"File name in the download directory"
//	@Param			run		query		string	false	"Run id; omitted returns the most recent report"
//	@Success		200		{object}	index.ReportRow
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reports/{path} [get]
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	path := reportPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	rep, err := h.svc.GetReport(r.Context(), r.URL.Query().Get("run"), path)
	if err != nil {
		writeError(w, "get report", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

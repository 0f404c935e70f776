package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/keepsake/internal/reportservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// mediaRoot, if non-empty, is served read-only under /media.
func NewRouter(svc *reportservice.Service, authEnabled bool, token string, sseHandler http.Handler, mediaRoot string) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{id}", h.GetRun)
	r.Get("/runs/{id}/failures", h.ListRunFailures)

	r.Get("/reports", h.ListReports)
	r.Get("/reports/*", h.GetReport)

	if mediaRoot != "" {
		r.Get("/media/{filename}", NewMediaHandler(mediaRoot).ServeFile)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

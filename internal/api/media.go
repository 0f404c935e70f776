package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/keepsake/internal/models"
)

// MediaHandler serves files from the download directory, read-only.
type MediaHandler struct {
	root string
}

// NewMediaHandler creates a handler rooted at the download directory.
func NewMediaHandler(root string) *MediaHandler {
	return &MediaHandler{root: root}
}

// safeName validates that the filename is a plain media file name (no path
// separators, no traversal) and returns its absolute path.
func (h *MediaHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	if models.MediaTypeFromExtension(filepath.Ext(cleaned)) == models.MediaUnknown {
		return "", fmt.Errorf("not a media file: %s", name)
	}
	return filepath.Join(h.root, cleaned), nil
}

// ServeFile handles GET /media/{filename}.
func (h *MediaHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safeName(chi.URLParam(r, "filename"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	info, statErr := os.Stat(abs)
	if statErr != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	http.ServeFile(w, r, abs)
}

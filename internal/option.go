package internal

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/starford/keepsake/internal/exiftool"
	"github.com/starford/keepsake/internal/geotz"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	out     io.Writer
	logger  *slog.Logger
	client  *http.Client
	tags    exiftool.ReadWriter
	zones   geotz.Finder
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server and doctor.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithOutput sets where run summaries are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithLogger replaces the logger built from the app config.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithHTTPClient sets the client used to resolve and fetch assets.
func WithHTTPClient(c *http.Client) Option {
	return func(a *application) {
		a.client = c
	}
}

// WithTagTool replaces the exiftool process used to read and write tags.
func WithTagTool(t exiftool.ReadWriter) Option {
	return func(a *application) {
		a.tags = t
	}
}

// WithZoneFinder replaces the tzf coordinate to zone lookup.
func WithZoneFinder(f geotz.Finder) Option {
	return func(a *application) {
		a.zones = f
	}
}

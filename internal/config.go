package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/keepsake/internal/download"
	"github.com/starford/keepsake/internal/exiftool"
	"github.com/starford/keepsake/internal/geotz"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatAuto = "auto"
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Archive   ArchiveConfig     `yaml:"archive"`
	Download  DownloadConfig    `yaml:"download"`
	Exiftool  ExiftoolConfig    `yaml:"exiftool"`
	Timezone  TimezoneConfig    `yaml:"timezone"`
	Reconcile ReconcileConfig   `yaml:"reconcile"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Archive, &c.Download, &c.Exiftool, &c.Timezone, &c.Reconcile, &c.SQLite, &c.Auth,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatAuto
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatAuto, LogFormatJSON, LogFormatText)),
	); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ArchiveConfig locates the manifest and everything derived from it.
type ArchiveConfig struct {
	ManifestPath   string `yaml:"manifest_path"`
	DownloadDir    string `yaml:"download_dir"`
	CheckpointPath string `yaml:"checkpoint_path"`
	ExportPath     string `yaml:"export_path"`
}

// Validate validates the archive configuration. An empty checkpoint path
// defaults to checkpoint.txt inside the download directory.
func (c *ArchiveConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ManifestPath, validation.Required),
		validation.Field(&c.DownloadDir, validation.Required),
	); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if c.CheckpointPath == "" {
		c.CheckpointPath = filepath.Join(c.DownloadDir, "checkpoint.txt")
	}
	return nil
}

// DownloadConfig tunes the download engine.
type DownloadConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	Retries        int           `yaml:"retries"`
	Backoff        time.Duration `yaml:"backoff"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
}

// Validate validates the download configuration.
func (c *DownloadConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Concurrency, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.Retries, validation.Min(1), validation.Max(20)),
		validation.Field(&c.Backoff, validation.Min(time.Duration(0))),
		validation.Field(&c.ResolveTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.FetchTimeout, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	return nil
}

// Options converts the section into download engine options.
func (c *DownloadConfig) Options() download.Options {
	return download.Options{
		Concurrency:    c.Concurrency,
		Retries:        c.Retries,
		Backoff:        c.Backoff,
		ResolveTimeout: c.ResolveTimeout,
		FetchTimeout:   c.FetchTimeout,
	}
}

// ExiftoolConfig locates the exiftool binary.
type ExiftoolConfig struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the exiftool configuration.
func (c *ExiftoolConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Binary, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("exiftool: %w", err)
	}
	return nil
}

// TimezoneConfig holds the fallback zone for assets without a usable location.
type TimezoneConfig struct {
	Default string `yaml:"default"`
}

// Validate validates the timezone configuration.
func (c *TimezoneConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Default, validation.Required, validation.By(loadableZone)),
	); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

func loadableZone(value any) error {
	name, _ := value.(string)
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("unknown zone %q", name)
	}
	return nil
}

// ReconcileConfig tunes reconciliation and correction.
type ReconcileConfig struct {
	Workers int `yaml:"workers"`
}

// Validate validates the reconcile configuration.
func (c *ReconcileConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(256)),
	); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the inspection API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatAuto,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Archive: ArchiveConfig{
			ManifestPath:   "./memories_history.json",
			DownloadDir:    "./memories",
			CheckpointPath: "./memories/checkpoint.txt",
			ExportPath:     "./needs_fix.json",
		},
		Download: DownloadConfig{
			Concurrency:    download.DefaultConcurrency,
			Retries:        download.DefaultRetries,
			Backoff:        download.DefaultBackoff,
			ResolveTimeout: 30 * time.Second,
			FetchTimeout:   5 * time.Minute,
		},
		Exiftool: ExiftoolConfig{
			Binary:  exiftool.DefaultBinary,
			Timeout: 30 * time.Second,
		},
		Timezone: TimezoneConfig{
			Default: geotz.DefaultZone,
		},
		Reconcile: ReconcileConfig{
			Workers: 8,
		},
		SQLite: SQLiteConfig{
			Path: "./keepsake.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

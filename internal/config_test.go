package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Download.Concurrency != 50 || cfg.Download.Retries != 3 {
		t.Errorf("download defaults = %+v", cfg.Download)
	}
	if cfg.Timezone.Default != "America/Denver" {
		t.Errorf("default zone = %q", cfg.Timezone.Default)
	}
}

func TestApplicationConfig_LogFormat(t *testing.T) {
	cfg := ApplicationConfig{HTTP: HTTPConfig{Port: 8080}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty format should default: %v", err)
	}
	if cfg.LogFormat != LogFormatAuto {
		t.Errorf("format = %q, want auto", cfg.LogFormat)
	}

	cfg.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestHTTPConfig_Address(t *testing.T) {
	cfg := HTTPConfig{Port: 9090}
	if got := cfg.Address(); got != ":9090" {
		t.Errorf("Address() = %q", got)
	}
	if err := (&HTTPConfig{Port: 70000}).Validate(); err == nil {
		t.Error("out of range port should fail")
	}
}

func TestArchiveConfig_Validate(t *testing.T) {
	cfg := ArchiveConfig{ManifestPath: "m.json", DownloadDir: "/data/memories"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.CheckpointPath != "/data/memories/checkpoint.txt" {
		t.Errorf("checkpoint = %q", cfg.CheckpointPath)
	}

	err := (&ArchiveConfig{ManifestPath: "m.json"}).Validate()
	if err == nil || !strings.Contains(err.Error(), "archive") {
		t.Errorf("missing download dir error = %v", err)
	}
}

func TestDownloadConfig_Validate(t *testing.T) {
	cfg := DownloadConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero values fall back to engine defaults: %v", err)
	}
	if err := (&DownloadConfig{Concurrency: -1}).Validate(); err == nil {
		t.Error("negative concurrency should fail")
	}
	if err := (&DownloadConfig{Backoff: -time.Second}).Validate(); err == nil {
		t.Error("negative backoff should fail")
	}

	opts := (&DownloadConfig{Concurrency: 4, Retries: 2, Backoff: time.Second}).Options()
	if opts.Concurrency != 4 || opts.Retries != 2 || opts.Backoff != time.Second {
		t.Errorf("Options() = %+v", opts)
	}
}

func TestTimezoneConfig_Validate(t *testing.T) {
	if err := (&TimezoneConfig{Default: "Europe/Berlin"}).Validate(); err != nil {
		t.Errorf("valid zone: %v", err)
	}
	if err := (&TimezoneConfig{Default: "Mars/Olympus"}).Validate(); err == nil {
		t.Error("unknown zone should fail")
	}
	if err := (&TimezoneConfig{}).Validate(); err == nil {
		t.Error("empty zone should fail")
	}
}

func TestExiftoolAndReconcileConfig_Validate(t *testing.T) {
	if err := (&ExiftoolConfig{}).Validate(); err == nil {
		t.Error("empty binary should fail")
	}
	if err := (&ReconcileConfig{Workers: 0}).Validate(); err == nil {
		t.Error("zero workers should fail")
	}
	if err := (&ReconcileConfig{Workers: 4}).Validate(); err != nil {
		t.Errorf("workers 4: %v", err)
	}
}

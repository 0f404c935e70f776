package internal

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/starford/keepsake/internal/exiftool"
	"github.com/starford/keepsake/internal/geotz"
	"github.com/starford/keepsake/internal/manifest"
	"github.com/starford/keepsake/internal/summary"
)

// ErrChecksFailed is returned by RunDoctor when any check fails.
var ErrChecksFailed = errors.New("doctor: checks failed")

// RunDoctor checks the environment a run depends on and prints one line per
// check.
func RunDoctor(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	printer := summary.NewPrinter(app.out)
	failed := 0
	check := func(label string, msg string, err error) {
		if err != nil {
			failed++
			printer.Status(label, false, err.Error())
			return
		}
		printer.Status(label, true, msg)
	}

	check("config", "valid", cfg.Validate())

	tool := exiftool.New(cfg.Exiftool.Binary, cfg.Exiftool.Timeout)
	if err := tool.Available(); err != nil {
		check("exiftool", "", err)
	} else {
		version, err := tool.Version(ctx)
		check("exiftool", "version "+version, err)
	}

	if app.zones == nil {
		_, err := geotz.NewTZF()
		check("timezone data", "loaded", err)
	}
	_, err = geotz.NewLocalizer(app.zones, cfg.Timezone.Default, app.logger)
	check("default zone", cfg.Timezone.Default, err)

	if m, err := manifest.LoadFile(cfg.Archive.ManifestPath); err != nil {
		check("manifest", "", err)
	} else {
		check("manifest", fmt.Sprintf("%s records, %s downloadable, %d malformed",
			humanize.Comma(int64(len(m.Records))), humanize.Comma(int64(m.Downloadable())), len(m.Problems)), nil)
	}

	if _, err := os.Stat(cfg.Archive.DownloadDir); err != nil {
		check("download dir", "", err)
	} else if store, err := app.openStore(); err != nil {
		check("download dir", "", err)
	} else {
		files, err := store.List()
		check("download dir", fmt.Sprintf("%s media files", humanize.Comma(int64(len(files)))), err)
	}

	if db, err := app.openIndex(); err != nil {
		check("index", "", err)
	} else {
		msg := "no runs yet"
		if run, err := db.LatestRun(); err == nil {
			msg = fmt.Sprintf("last run %s (%s) %s", run.ID, run.Kind, humanize.Time(run.StartedAt))
		}
		check("index", msg, nil)
		db.Close()
	}

	if cfg.Archive.ExportPath != "" {
		if doc, err := ReadExport(cfg.Archive.ExportPath); err == nil {
			printer.Status("needs-fix export", true, fmt.Sprintf("%d entries from run %s", doc.Count, doc.RunID))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d", ErrChecksFailed, failed)
	}
	return nil
}

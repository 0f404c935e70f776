package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // zone database for hosts without one

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/keepsake/internal"
	pkgconfig "github.com/starford/keepsake/pkg/config"
)

var version = "dev"

type runFunc func(context.Context, ...internal.Option) error

// loadConfig reads the config file. A missing file is only an error when the
// path was given explicitly; otherwise the defaults apply.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	var err error
	if cmd.IsSet("config") {
		err = pkgconfig.Load(configPath, cfg)
	} else {
		err = pkgconfig.LoadWithDefaults(configPath, "", cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if v := cmd.String("manifest"); v != "" {
		cfg.Archive.ManifestPath = v
	}
	if v := cmd.String("dir"); v != "" {
		cfg.Archive.DownloadDir = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func action(run runFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithVersion(version),
		}

		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("%s: %w", cmd.Name, err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "keepsake",
		Usage:   "Restore a personal media export: download it, then reconcile and fix its metadata",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("KEEPSAKE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "manifest",
				Aliases: []string{"m"},
				Usage:   "Path to the export manifest (overrides archive.manifest_path)",
				Sources: cli.EnvVars("KEEPSAKE_MANIFEST"),
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Download directory (overrides archive.download_dir)",
				Sources: cli.EnvVars("KEEPSAKE_DIR"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "download",
				Usage:  "Download every manifest asset that is not already archived",
				Action: action(internal.RunDownload),
			},
			{
				Name:   "reconcile",
				Usage:  "Compare archived files against the manifest and export the ones needing a fix",
				Action: action(internal.RunReconcile),
			},
			{
				Name:   "fix",
				Usage:  "Reconcile, then rename and retag every file that needs a fix",
				Action: action(internal.RunFix),
			},
			{
				Name:   "serve",
				Usage:  "Serve the read-only inspection API and watch the archive for changes",
				Action: action(internal.RunServe),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the inspection tools over MCP stdio",
				Action: action(internal.RunMCP),
			},
			{
				Name:   "doctor",
				Usage:  "Check exiftool, timezone data, config and paths",
				Action: action(internal.RunDoctor),
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		stop()
		if errors.Is(err, context.Canceled) {
			slog.Warn("interrupted")
			os.Exit(130)
		}
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

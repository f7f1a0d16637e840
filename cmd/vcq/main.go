package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/vcq/internal"
	pkgconfig "github.com/starford/vcq/pkg/config"
)

var version = "dev"

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	// Flags override the config file.
	if dirs := cmd.StringSlice("vcard-dir"); len(dirs) > 0 {
		cfg.Directories = dirs
	}
	if cmd.IsSet("cache-dir") {
		cfg.Cache.Dir = cmd.String("cache-dir")
	}
	if cmd.IsSet("backend") {
		cfg.Cache.Backend = cmd.String("backend")
		if err := cfg.Cache.Validate(); err != nil {
			return fmt.Errorf("invalid cache backend: %w", err)
		}
	}

	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	pattern := ""
	if cmd.Args().Len() > 0 {
		pattern = cmd.Args().First()
	}
	if cmd.Args().Len() > 1 {
		return fmt.Errorf("expected at most one pattern, got %d arguments", cmd.Args().Len())
	}

	req := internal.QueryRequest{
		Pattern:       pattern,
		Regex:         cmd.Bool("regex"),
		AllAddresses:  cmd.Bool("all-addresses"),
		SortByName:    cmd.Bool("sort-names"),
		Mode:          cmd.String("mode"),
		StartingFirst: cmd.Bool("starting-first"),
		StatusLine:    cmd.Bool("status-line"),
		ClearCache:    cmd.Bool("clear-cache"),
	}

	return internal.Query(ctx, os.Stdout, req,
		internal.WithConfig(cfg),
		internal.WithLogger(logger),
		internal.WithVersion(version),
	)
}

func main() {
	cmd := &cli.Command{
		Name:      "vcq",
		Usage:     "Search vCard directories for e-mail addresses",
		ArgsUsage: "[pattern]",
		Version:   version,
		Action:    run,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "vcard-dir",
				Aliases: []string{"d"},
				Usage:   "vCard directory to search (repeatable)",
				Sources: cli.EnvVars("VCQ_VCARD_DIRS"),
			},
			&cli.BoolFlag{
				Name:    "all-addresses",
				Aliases: []string{"a"},
				Usage:   "Emit every address of a contact, not only the first",
			},
			&cli.BoolFlag{
				Name:    "sort-names",
				Aliases: []string{"n"},
				Usage:   "Sort by name instead of address",
			},
			&cli.BoolFlag{
				Name:    "regex",
				Aliases: []string{"r"},
				Usage:   "Treat the pattern as a case-insensitive regular expression",
			},
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Output format: listing or address-header",
				Value:   "listing",
			},
			&cli.BoolFlag{
				Name:    "starting-first",
				Aliases: []string{"s"},
				Usage:   "Put entries that match at the start of the line first",
			},
			&cli.BoolFlag{
				Name:  "status-line",
				Usage: "Print a leading status line (mutt query format)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to an optional config file",
				Sources: cli.EnvVars("VCQ_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "cache-dir",
				Usage:   "Directory holding the snapshot files",
				Sources: cli.EnvVars("VCQ_CACHE_DIR"),
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Snapshot backend: json or sqlite",
			},
			&cli.BoolFlag{
				Name:  "clear-cache",
				Usage: "Discard the stored snapshots before scanning",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log cache activity to stderr",
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "vcq: %v\n", err)
		os.Exit(1)
	}
}

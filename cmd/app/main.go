package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mdnorm/internal"
	"github.com/starford/mdnorm/internal/apperr"
	pkgconfig "github.com/starford/mdnorm/pkg/config"
)

var version = "dev"

type entrypoint func(ctx context.Context, opts ...internal.Option) error

func action(fn entrypoint) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithJSON(cmd.Bool("json")),
			internal.WithVersion(version),
		}

		if err := fn(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	}
}

// loadConfig layers defaults, the optional config file and explicit flags,
// then validates the result.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, apperr.ConfigError("parse config", err)
	}

	if cmd.IsSet("path") {
		cfg.Corpus.Path = cmd.String("path")
	}
	if cmd.IsSet("links") {
		cfg.Sources.Links = cmd.String("links")
	}
	if cmd.IsSet("topics") {
		cfg.Sources.Topics = cmd.String("topics")
	}
	if cmd.IsSet("workers") {
		cfg.App.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("dry-run") {
		cfg.App.DryRun = cmd.Bool("dry-run")
	}
	if cmd.IsSet("strict") {
		cfg.App.Strict = cmd.Bool("strict")
	}
	if cmd.IsSet("ignore-case") {
		cfg.Topics.IgnoreCase = cmd.Bool("ignore-case")
	}
	if cmd.IsSet("state") {
		cfg.State.Path = cmd.String("state")
	}

	if err := pkgconfig.Validate(cfg); err != nil {
		return nil, apperr.ConfigError("validate config", err)
	}
	return cfg, nil
}

func main() {
	cmd := &cli.Command{
		Name:    "mdnorm",
		Usage:   "Normalise links, wiki references and tags across a Markdown corpus",
		Version: version,
		Action:  action(internal.Run),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("MDNORM_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "Corpus root directory",
			},
			&cli.StringFlag{
				Name:  "links",
				Usage: "Link alias table (.yaml, .yml or .toml)",
			},
			&cli.StringFlag{
				Name:  "topics",
				Usage: "Known topics file, one per line",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Documents processed concurrently",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Report changes without writing documents",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Exit non-zero when any document fails",
			},
			&cli.BoolFlag{
				Name:  "ignore-case",
				Usage: "Match topics case-insensitively",
			},
			&cli.StringFlag{
				Name:  "state",
				Usage: "SQLite run ledger; enables incremental runs",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print run summaries as JSON",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Normalise the corpus once and print a summary",
				Action: action(internal.Run),
			},
			{
				Name:   "watch",
				Usage:  "Normalise the corpus, then again whenever it changes",
				Action: action(internal.Watch),
			},
			{
				Name:   "serve",
				Usage:  "Watch the corpus and expose run status over HTTP",
				Action: action(internal.Serve),
			},
			{
				Name:   "mcp",
				Usage:  "Serve preview and reference tools to MCP clients on stdio",
				Action: action(internal.ServeMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

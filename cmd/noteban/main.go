package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/noteban/noteban/internal"
	pkgconfig "github.com/noteban/noteban/pkg/config"
)

const defaultConfigPath = "config/config.yaml"

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to config file",
			Value:   defaultConfigPath,
			Sources: cli.EnvVars("NOTEBAN_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "Override the cache profile",
			Sources: cli.EnvVars("NOTEBAN_PROFILE"),
		},
	}
}

// loadConfig builds the effective configuration. An explicitly requested
// config file must exist; the default path is optional and the built-in
// defaults apply when it is absent.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()

	path := cmd.String("config")
	load := pkgconfig.LoadIfPresent[internal.Config]
	if cmd.IsSet("config") {
		load = pkgconfig.Load[internal.Config]
	}
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func options(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithProfile(cmd.String("profile")),
	}, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}

	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "noteban",
		Usage:  "Headless kanban notes server over a Markdown vault",
		Action: run,
		Flags:  flags(),
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Expose the vault to AI agents over MCP stdio",
				Action: runMCP,
				Flags:  flags(),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

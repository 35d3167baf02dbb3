package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/tofunori/obsidian-mcp/internal"
	"github.com/tofunori/obsidian-mcp/internal/retriever"
	pkgconfig "github.com/tofunori/obsidian-mcp/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func runIndex(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunIndex(ctx, cmd.Bool("full"), internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("index run error: %w", err)
	}
	return nil
}

func runSearch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	req := retriever.Request{
		Query:  strings.Join(cmd.Args().Slice(), " "),
		TopK:   int(cmd.Int("top-k")),
		Alpha:  cmd.Float("alpha"),
		Folder: cmd.String("folder"),
	}
	if tags := cmd.String("tags"); tags != "" {
		req.Tags = strings.Split(tags, ",")
	}

	if err := internal.RunSearch(ctx, req, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("search run error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "obsidian-mcp",
		Usage: "Hybrid search assistant for Markdown vaults: BM25 + semantic retrieval over HTTP and MCP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API server with file watching",
				Action: runServe,
			},
			{
				Name:   "mcp",
				Usage:  "Start the MCP server on stdio for LLM clients",
				Action: runMCP,
			},
			{
				Name:      "search",
				Usage:     "Run a one-shot hybrid search and print results as JSON",
				ArgsUsage: "<query>",
				Action:    runSearch,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Max results to return",
						Value: 10,
					},
					&cli.FloatFlag{
						Name:  "alpha",
						Usage: "Semantic weight in [0,1]; defaults to the configured value",
						Value: -1,
					},
					&cli.StringFlag{
						Name:  "folder",
						Usage: "Restrict results to a folder prefix",
					},
					&cli.StringFlag{
						Name:  "tags",
						Usage: "Comma-separated tag filter",
					},
				},
			},
			{
				Name:   "index",
				Usage:  "Run a one-shot vault scan and print stats",
				Action: runIndex,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Re-embed all notes even if unchanged",
					},
				},
			},
		},
		// Default to serving when no subcommand is given.
		Action: runServe,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

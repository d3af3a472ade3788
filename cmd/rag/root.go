package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/xhad/docqa/internal/app"
	"github.com/xhad/docqa/pkg/config"
	"github.com/xhad/docqa/pkg/logger"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "rag",
	Short: "Ingest documents and ask questions about them",
	Long: `rag works against the same database and object store as the HTTP server.
Upload files, scrape web pages, manage documents and ask questions from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show service logs")
}

// openApp loads configuration and connects to every backing service.
// Service logs are discarded unless --verbose is set so they do not
// fight with the progress bars.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	var out io.Writer = io.Discard
	if verbose {
		out = rootCmd.ErrOrStderr()
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format, out)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}

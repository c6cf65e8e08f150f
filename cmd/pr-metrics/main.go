package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	rootCmd    = &cobra.Command{
		Use:   "pr-metrics",
		Short: "GitHub PR Metrics Analyzer - pull request statistics per developer and repository",
		Long: `pr-metrics fetches pull request data from the GitHub API and computes
per-developer and per-repository statistics: merge rates, time to merge,
PR sizes and more. Run it as a web service with live progress streaming,
or as a one-shot analysis on the command line.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

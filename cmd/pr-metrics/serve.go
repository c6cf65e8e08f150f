package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/go2siri/github-pr-metrics/internal/config"
	"github.com/go2siri/github-pr-metrics/internal/gateway"
	"github.com/go2siri/github-pr-metrics/internal/notify"
	"github.com/go2siri/github-pr-metrics/internal/task"
	"github.com/go2siri/github-pr-metrics/internal/worker"
	"github.com/go2siri/github-pr-metrics/web/api"
)

var serveAddr string

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis web service",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging()

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	addr := cfg.Addr()
	if serveAddr != "" {
		addr = serveAddr
	}

	hub := notify.NewHub()
	pool := worker.NewPool(cfg.Analysis.Workers, cfg.Analysis.QueueSize)
	registry := task.NewRegistry(hub, pool)

	clientCfg := gateway.Config{
		BaseURL:        cfg.GitHub.BaseURL,
		RequestTimeout: cfg.GitHub.RequestTimeout(),
		MaxRetries:     cfg.GitHub.MaxRetries,
		MaxPages:       cfg.GitHub.MaxPages,
	}
	runner := task.NewRunner(registry, func(token string) (gateway.Fetcher, error) {
		return gateway.NewClient(token, clientCfg)
	}, cfg.Analysis.Timeout())
	registry.SetRunFunc(runner.Run)

	server := api.NewServer(registry, hub, api.Config{
		Addr:              addr,
		HeartbeatInterval: cfg.WebSocket.Heartbeat(),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		pool.Shutdown()
		return err
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	pool.Shutdown()
	slog.Info("shutdown complete")
	return nil
}

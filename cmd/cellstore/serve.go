package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/cellstore"
	"github.com/jpalmerr/cellstore/config"
)

const shutdownTimeout = 10 * time.Second

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// serveCmd serves a configured store.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the store over HTTP",
	Long: `Serve a store described by a YAML file.

The server will:
  - Build the store from the configuration
  - Poll every configured feed and dispatch its payloads
  - Serve the JSON API, SSE and websocket streams, /metrics,
    and the inspector page on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  cellstore serve -c store.yaml
  cellstore serve --config /etc/cellstore/store.yaml --port 9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().IntP("port", "p", 0, "override the configured port")
	serveCmd.Flags().Bool("debug", false, "log every dispatch, notification and request")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	logger := newLogger(level)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Port = port
	}

	logger.Info("config loaded",
		"events", len(cfg.Events),
		"subscriptions", len(cfg.Subscriptions),
		"feeds", len(cfg.Feeds),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := cellstore.NewPrometheusRecorder(reg)

	st, err := config.BuildStore(cfg,
		cellstore.WithLogger(logger),
		cellstore.WithRecorder(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to build store: %w", err)
	}

	opts, err := config.ServeOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build feeds: %w", err)
	}
	opts = append(opts,
		cellstore.WithServeLogger(logger),
		cellstore.WithGatherer(reg),
		cellstore.WithMetrics(metrics),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Serve blocks until ctx is cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- cellstore.Serve(ctx, st, opts...)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

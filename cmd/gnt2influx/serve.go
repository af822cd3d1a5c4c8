package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"gnt2influx/internal/influx"
	"gnt2influx/internal/observability"
	"gnt2influx/internal/pipeline"
	"gnt2influx/internal/web"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingest server",
		Long: `serve starts an HTTP server that accepts drive-test log uploads on
POST /api/v1/ingest and exposes /healthz and /metrics endpoints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return err
	}

	client, err := influx.New(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	defer client.Close()

	collector, err := observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	pipe := pipeline.New(cfg, client, collector, log)
	server := web.NewServer(cfg, pipe, client, collector, log)

	// Surface connectivity problems at startup but keep serving; the
	// server may come up before InfluxDB does.
	if err := client.TestConnection(ctx); err != nil {
		logConnectionHint(log, cfg)
	} else if err := client.EnsureDatabase(ctx); err != nil {
		log.Warn("failed to ensure database", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

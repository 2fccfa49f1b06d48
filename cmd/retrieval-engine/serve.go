// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/retrieval-engine/internal/progress"
	"github.com/pdiddy/retrieval-engine/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP with streaming progress",
	Long: `Serve exposes the adaptive search loop over HTTP. POST /api/v1/searches
streams progress as server-sent events and finishes with the full result;
DELETE /api/v1/searches/{id} cancels a running search. Prometheus metrics
are served on /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "listen host (overrides config)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides config)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	orch, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	var mirror progress.Emitter
	if cfg.Server.NATSURL != "" {
		pub, err := server.NewEventPublisher(cfg.Server.NATSURL, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		mirror = pub
		logger.Info("mirroring progress events to NATS", zap.String("url", cfg.Server.NATSURL))
	}

	srv, err := server.NewServer(orch, cfg.Server, mirror, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retriever/internal/metrics"
	chiTransport "github.com/kailas-cloud/retriever/internal/transport/chi"
	"github.com/kailas-cloud/retriever/internal/version"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve queries and rebuilds over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(ctx context.Context, flags *rootFlags) error {
	cfg, logger, err := setup(flags)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting retriever API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", flags.env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// A corrupt index is served as unavailable until the next rebuild.
	if err := a.engine.Load(); err != nil {
		logger.Warn("Serving without an index", zap.Error(err))
	}

	server := chiTransport.NewServer(a.engine, a.health, chiTransport.Options{
		DefaultK:         cfg.Query.K,
		DefaultThreshold: cfg.Query.MinSimilarity(),
		QueryTimeout:     time.Duration(cfg.Query.TimeoutSec) * time.Second,
		RebuildTimeout:   time.Duration(cfg.Index.RebuildTimeoutSec) * time.Second,
	}, logger)

	metrics.RegisterHTTPMetrics()
	r := chi.NewRouter()
	r.Use(chiTransport.Recoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.RequestLogger(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-quit:
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/metrics"
	chiTransport "github.com/kailas-cloud/docingest/internal/transport/chi"
	"github.com/kailas-cloud/docingest/internal/usecase/health"
	"github.com/kailas-cloud/docingest/internal/usecase/search"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
	"github.com/kailas-cloud/docingest/internal/version"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		backend string
		path    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve similarity search over an ingested store",
		Long: `Opens the store at vector_store.path with the configured embeddings model and
serves POST /search, GET /health and GET /metrics. The store must have been
built with a model of the same dimensionality.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if backend != "" {
				a.cfg.VectorStore.Backend = backend
			}
			if path != "" {
				a.cfg.VectorStore.Path = path
			}
			if port != 0 {
				a.cfg.HTTP.Port = port
			}
			return runServe(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "faiss, s3, elasticsearch or redis (default from config)")
	cmd.Flags().StringVar(&path, "path", "", "store to open, e.g. outputs/react (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (default from config)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := a.logger

	if cfg.VectorStore.Path == "" {
		return &domain.ConfigurationError{Field: "vector_store.path", Expected: "a store path", Actual: "empty"}
	}

	logger.Info("Starting docingest query server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("backend", cfg.VectorStore.Backend),
		zap.String("path", cfg.VectorStore.Path),
	)

	metrics.RegisterHTTPMetrics()

	b := newBackends(cfg, logger)
	defer b.Close()

	embedder, model, err := buildEmbedder(ctx, cfg.Embedding, logger)
	if err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}
	if embedder, err = b.withCache(ctx, embedder, model.Name); err != nil {
		return err
	}

	store, err := vectorstore.Open(ctx, b.Registry(), cfg.VectorStore.Backend, vectorstore.Options{
		Path:     cfg.VectorStore.Path,
		Embedder: embedder,
		Model:    model,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("Failed to close store", zap.Error(cerr))
		}
	}()

	var checker health.EmbeddingChecker
	if hc, ok := embedder.(domain.HealthChecker); ok {
		checker = hc
	}
	server := chiTransport.NewServer(search.New(store), health.New(b.Pinger(), checker), logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

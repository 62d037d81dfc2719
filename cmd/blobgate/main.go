// Package main is the entry point for the blobgate object storage gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/blobgate/blobgate/internal/backend"
	"github.com/blobgate/blobgate/internal/config"
	"github.com/blobgate/blobgate/internal/httpapi"
	"github.com/blobgate/blobgate/internal/logging"
	"github.com/blobgate/blobgate/internal/metadatastore"
	"github.com/blobgate/blobgate/internal/metrics"
	"github.com/blobgate/blobgate/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	metrics.Register()

	ctx := context.Background()

	be, err := newBackend(ctx, cfg.Backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize storage backend: %v\n", err)
		os.Exit(1)
	}
	if err := be.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "backend is not reachable: %v\n", err)
		os.Exit(1)
	}
	slog.Info("storage backend initialized", "kind", cfg.Backend.Kind)

	metaStore, err := metadatastore.New(ctx, be)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize metadata store: %v\n", err)
		os.Exit(1)
	}

	svc := service.New(be, metaStore)
	srv := httpapi.New(svc, cfg.Backend.Kind)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("blobgate listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		slog.Info("server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}

// newBackend constructs the configured Backend implementation.
func newBackend(ctx context.Context, cfg config.BackendConfig) (backend.Backend, error) {
	switch cfg.Kind {
	case "s3":
		return backend.NewS3Backend(ctx, cfg.S3.PhysicalBucket, cfg.S3.Region, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey)
	case "gcs":
		return backend.NewGCSBackend(ctx, cfg.GCS.PhysicalBucket)
	case "azure":
		accountURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Azure.Account)
		return backend.NewAzureBackend(ctx, cfg.Azure.PhysicalBucket, accountURL, cfg.Azure.Account, cfg.Azure.AccessKey)
	default:
		root := filepath.Join(cfg.Local.RootPath, cfg.Local.PhysicalBucket)
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("creating local storage root: %w", err)
		}
		return backend.NewLocalBackend(root)
	}
}

// Package main is the entry point for blobgate-sweep, a standalone tool
// that periodically reaps expired advisory locks from a blobgate metadata
// store. Run it alongside the gateway when long-held locks are expected
// (e.g. interrupted multi-step writes) and no request happens to observe
// and clear them on its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/blobgate/blobgate/internal/backend"
	"github.com/blobgate/blobgate/internal/config"
	"github.com/blobgate/blobgate/internal/logging"
	"github.com/blobgate/blobgate/internal/metadatastore"
	"github.com/blobgate/blobgate/internal/metrics"
)

func main() {
	interval := flag.Duration("interval", 60*time.Second, "how often to sweep for expired locks")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := newBackend(ctx, cfg.Backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize storage backend: %v\n", err)
		os.Exit(1)
	}
	if err := be.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "backend is not reachable: %v\n", err)
		os.Exit(1)
	}

	metaStore, err := metadatastore.New(ctx, be)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize metadata store: %v\n", err)
		os.Exit(1)
	}

	slog.Info("blobgate-sweep starting", "interval", interval.String())

	sweep(ctx, metaStore)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("blobgate-sweep stopping")
			return
		case <-ticker.C:
			sweep(ctx, metaStore)
		}
	}
}

func sweep(ctx context.Context, metaStore *metadatastore.Store) {
	n, err := metaStore.CleanupExpiredLocks(ctx)
	if err != nil {
		slog.Error("lock sweep failed", "error", err)
		return
	}
	if n > 0 {
		metrics.LocksExpiredTotal.Add(float64(n))
		slog.Info("swept expired locks", "count", n)
	}
}

// newBackend constructs the configured Backend implementation. Duplicated
// from cmd/blobgate rather than shared, since the sweeper and the gateway
// are independently deployable binaries with no common internal package to
// own this selection without forcing one to import the other's tree.
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

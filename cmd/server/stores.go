package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/InvoiceDesk/internal/blob"
	"github.com/JonMunkholm/InvoiceDesk/internal/config"
	"github.com/JonMunkholm/InvoiceDesk/internal/core"
	"github.com/JonMunkholm/InvoiceDesk/internal/store/postgres"
	"github.com/JonMunkholm/InvoiceDesk/internal/store/sqlite"
)

// stores bundles the persistence backends selected by configuration.
type stores struct {
	rules     core.RuleStore
	snapshots core.SnapshotStore
	blobs     core.BlobStore

	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// openStores opens the SQLite database for snapshots, the rule store
// (PostgreSQL when DATABASE_URL is set, otherwise the same SQLite file) and
// the blob backend.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	local, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	st.closers = append(st.closers, func() { _ = local.Close() })
	st.snapshots = local
	slog.Info("recovery store opened", "path", cfg.Storage.SQLitePath)

	if cfg.Database.UsePostgres() {
		pg, err := postgres.Connect(ctx, postgres.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			st.Close()
			return nil, err
		}
		st.closers = append(st.closers, pg.Close)
		st.rules = pg
		slog.Info("rule store: postgres")
	} else {
		st.rules = local
		slog.Info("rule store: sqlite")
	}

	switch strings.ToLower(cfg.Storage.BlobBackend) {
	case "s3":
		s3store, err := blob.NewS3Store(ctx, blob.S3Options{
			Bucket:   cfg.Storage.S3Bucket,
			Prefix:   cfg.Storage.S3Prefix,
			Region:   cfg.Storage.S3Region,
			Endpoint: cfg.Storage.S3Endpoint,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open s3 blob store: %w", err)
		}
		st.blobs = s3store
		slog.Info("blob store: s3", "bucket", cfg.Storage.S3Bucket, "prefix", cfg.Storage.S3Prefix)
	default:
		fs, err := blob.NewFileStore(cfg.Storage.BlobDir)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open blob directory: %w", err)
		}
		st.blobs = fs
		slog.Info("blob store: filesystem", "dir", fs.Dir())
	}

	return st, nil
}

package core

// scheduler.go provides background scheduling for the retention sweep.
//
// The sweep deletes recovery snapshots and overflow history blobs older than
// the retention window. It runs once at start and then on every tick, and is
// independent of any session being active. Failures are logged and never stop
// the scheduler.

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/InvoiceDesk/internal/metrics"
)

// SweepConfig holds configuration for the retention sweep.
type SweepConfig struct {
	Retention     time.Duration // Artifacts older than this are deleted (default: 24h)
	CheckInterval time.Duration // How often to run (default: 1h)
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Hour
	}
	return c
}

// SweepResult reports what one sweep removed.
type SweepResult struct {
	Snapshots int
	Blobs     int
}

// StartSweepScheduler runs the retention sweep immediately and then every
// CheckInterval until ctx is cancelled.
func (s *Service) StartSweepScheduler(ctx context.Context, cfg SweepConfig) {
	cfg = cfg.withDefaults()
	slog.Info("sweep scheduler started",
		"retention", cfg.Retention,
		"interval", cfg.CheckInterval,
	)

	s.runSweepJob(ctx, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.runSweepJob(ctx, cfg)
		}
	}
}

func (s *Service) runSweepJob(ctx context.Context, cfg SweepConfig) {
	start := time.Now()
	res, err := s.Sweep(ctx, start.Add(-cfg.Retention))
	if err != nil {
		slog.Error("sweep failed", "error", err)
	}
	slog.Info("sweep job completed",
		"snapshots_deleted", res.Snapshots,
		"blobs_deleted", res.Blobs,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Sweep deletes snapshots and blobs created before cutoff. Blobs still
// referenced by a live history survive so pending undos keep working. Both
// stores are swept concurrently; counts are reported even when one fails.
func (s *Service) Sweep(ctx context.Context, cutoff time.Time) (SweepResult, error) {
	var res SweepResult
	g, gctx := errgroup.WithContext(ctx)

	if s.snapshots != nil {
		g.Go(func() error {
			n, err := s.snapshots.Sweep(gctx, cutoff)
			res.Snapshots = n
			metrics.SweepDeleted.WithLabelValues("snapshot").Add(float64(n))
			if err != nil {
				return storageErr("sweep snapshots", err)
			}
			return nil
		})
	}
	if s.blobs != nil {
		g.Go(func() error {
			n, err := s.blobs.Sweep(gctx, cutoff, s.sessions.Handles())
			res.Blobs = n
			metrics.SweepDeleted.WithLabelValues("blob").Add(float64(n))
			if err != nil {
				return storageErr("sweep blobs", err)
			}
			return nil
		})
	}

	err := g.Wait()
	return res, err
}

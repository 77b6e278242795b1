// Command server runs the invoice desk HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/InvoiceDesk/internal/config"
	"github.com/JonMunkholm/InvoiceDesk/internal/core"
	"github.com/JonMunkholm/InvoiceDesk/internal/logging"
	"github.com/JonMunkholm/InvoiceDesk/internal/web"
)

func main() {
	// Overload lets a local .env win over the shell environment
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	service := core.NewService(st.rules, st.snapshots, st.blobs, core.Config{
		HistoryCapacity:     cfg.Session.HistoryCapacity,
		BulkDeleteThreshold: cfg.Session.BulkDeleteThreshold,
		MaxConcurrentLoads:  cfg.Session.MaxLoads,
		LoadWait:            cfg.Session.LoadWait,
	}, logger)

	// The sweep stops with ctx on the first signal.
	go service.StartSweepScheduler(ctx, core.SweepConfig{
		Retention:     cfg.Sweep.Retention,
		CheckInterval: cfg.Sweep.Interval,
	})

	server := web.NewServer(service, cfg)
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if status := service.Limiter().Status(); status.Active > 0 {
		logger.Info("waiting for loads to complete", "active", status.Active)
		if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
			logger.Warn("loads did not complete in time", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

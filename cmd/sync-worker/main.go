package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookline/booking-engine/internal/booking"
	"github.com/bookline/booking-engine/internal/calendar"
	"github.com/bookline/booking-engine/internal/config"
	"github.com/bookline/booking-engine/internal/db"
	"github.com/bookline/booking-engine/internal/observability/metrics"
	"github.com/bookline/booking-engine/pkg/logging"
)

// The sync worker periodically reconciles the local appointment table with
// the admin's Google calendar. Disabled unless SYNC_INTERVAL is set.
func main() {
	logger := logging.Default()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load error", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel)

	if cfg.SyncInterval <= 0 {
		logger.Error("SYNC_INTERVAL must be set for the sync worker")
		os.Exit(1)
	}
	if !cfg.GoogleConfigured() {
		logger.Error("google oauth credentials are required for the sync worker")
		os.Exit(1)
	}
	logger.Info("sync-worker starting", "env", cfg.Env, "interval", cfg.SyncInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, db.PoolSettings{
		DSN:      cfg.PostgresDSN,
		MaxConns: cfg.PgMaxConns,
		MinConns: cfg.PgMinConns,
	})
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to postgres")

	cal := calendar.NewGoogleClient(calendar.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURI:  cfg.GoogleRedirectURI,
	}, logger)

	repo := booking.NewPgRepository(pgPool)
	reconciler := booking.NewReconciler(repo, cal, metrics.NewBookingMetrics(nil), logger)

	runOnce(rootCtx, logger, reconciler)

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sync worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, reconciler)
		}
	}
}

func runOnce(ctx context.Context, logger *logging.Logger, reconciler *booking.Reconciler) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()
	result, err := reconciler.Sync(runCtx)
	if err != nil {
		if errors.Is(err, booking.ErrCalendarNotConnected) {
			logger.Warn("admin has not connected a calendar yet, skipping sync")
			return
		}
		logger.Error("sync run error", "error", err)
		return
	}
	logger.Info("sync run complete",
		"created", result.Created,
		"updated", result.Updated,
		"duration", time.Since(start).String(),
	)
}

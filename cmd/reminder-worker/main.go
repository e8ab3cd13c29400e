package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookline/booking-engine/internal/booking"
	"github.com/bookline/booking-engine/internal/config"
	"github.com/bookline/booking-engine/internal/db"
	"github.com/bookline/booking-engine/internal/notify"
	"github.com/bookline/booking-engine/internal/observability/metrics"
	"github.com/bookline/booking-engine/pkg/logging"
)

// The reminder worker is the durable half of reminder delivery: the API
// process arms in-memory timers, this process sweeps the database so restarts
// and missed timers still get their emails. It also sends the day-before
// attendance confirmation requests.
func main() {
	logger := logging.Default()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load error", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel)
	logger.Info("reminder-worker starting", "env", cfg.Env, "interval", cfg.WorkerInterval)

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

	m := metrics.NewBookingMetrics(nil)
	repo := booking.NewPgRepository(pgPool)

	var sender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailFromName,
	}, logger); sg != nil {
		sender = sg
	} else {
		logger.Info("sendgrid not configured, emails go to the log")
		sender = notify.NewStubEmailSender(logger)
	}
	notifier := notify.NewEmailNotifier(sender, logger)

	reminders := booking.NewReminderScheduler(repo, notifier, m, cfg.ReminderLead, logger)
	confirmations := booking.NewConfirmationFlow(repo, notifier, m, cfg.ConfirmationLead, cfg.ClientURL, logger)

	runOnce(rootCtx, logger, reminders, confirmations)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, reminders, confirmations)
		}
	}
}

func runOnce(ctx context.Context, logger *logging.Logger, reminders *booking.ReminderScheduler, confirmations *booking.ConfirmationFlow) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()

	reminded, err := reminders.SendDueReminders(runCtx)
	if err != nil {
		logger.Error("reminder sweep error", "error", err)
	}

	confirmed, err := confirmations.SendDueConfirmations(runCtx)
	if err != nil {
		logger.Error("confirmation sweep error", "error", err)
	}

	logger.Info("sweep complete",
		"reminders_sent", reminded.Sent,
		"confirmations_sent", confirmed.Sent,
		"duration", time.Since(start).String(),
	)
}

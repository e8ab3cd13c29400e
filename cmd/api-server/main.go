package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookline/booking-engine/internal/api"
	"github.com/bookline/booking-engine/internal/booking"
	"github.com/bookline/booking-engine/internal/calendar"
	"github.com/bookline/booking-engine/internal/config"
	"github.com/bookline/booking-engine/internal/db"
	"github.com/bookline/booking-engine/internal/notify"
	"github.com/bookline/booking-engine/internal/observability/metrics"
	redisclient "github.com/bookline/booking-engine/internal/redis"
	"github.com/bookline/booking-engine/pkg/logging"
)

func main() {
	logger := logging.Default()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load error", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel)
	logger.Info("api-server starting", "env", cfg.Env, "http_port", cfg.HTTPPort)

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

	rdb, err := redisclient.NewRedisClient(redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
		Timeout:  cfg.RedisTimeout,
	})
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to redis")

	m := metrics.NewBookingMetrics(nil)
	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)

	var cal calendar.Client
	if cfg.GoogleConfigured() {
		cal = calendar.NewGoogleClient(calendar.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURI:  cfg.GoogleRedirectURI,
		}, logger)
		logger.Info("google calendar client configured")
	} else {
		logger.Info("google calendar not configured, using local availability rules")
	}

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
	defer reminders.Stop()
	confirmations := booking.NewConfirmationFlow(repo, notifier, m, cfg.ConfirmationLead, cfg.ClientURL, logger)
	reconciler := booking.NewReconciler(repo, cal, m, logger)
	svc := booking.NewService(repo, locker, cal, notifier, reminders, m, cfg, logger)

	srv := api.NewServer(svc, reminders, confirmations, reconciler, cfg.Timezone, logger)
	health := api.NewHealth(pgPool, rdb)
	auth := api.NewAuthenticator(cfg.JWTSecret)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(srv, health, auth, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
}

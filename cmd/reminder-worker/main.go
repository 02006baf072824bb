package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/docsure/booking-service/internal/config"
	"github.com/docsure/booking-service/internal/db"
	"github.com/docsure/booking-service/internal/logging"
	"github.com/docsure/booking-service/internal/notify"
	"github.com/docsure/booking-service/internal/reminder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("prod", "info", "json", "reminder-worker")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat, "reminder-worker")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns:        int32(cfg.PostgresMaxConn),
		MinConns:        int32(cfg.PostgresMinConn),
		ApplicationName: "docsure-reminder-worker",
	})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	dispatcher := notify.NewDispatcher(notify.NewMailer(cfg.Mail, logger), cfg.Location(), logger)

	worker := reminder.NewWorker(reminder.NewPgStore(pgPool), logger, cfg.ReminderPollInterval, cfg.ReminderBatchSize)
	worker.Register(reminder.JobTypeAppointmentReminder, dispatcher.ReminderHandler())

	logger.Info().
		Str("env", cfg.Env).
		Str("worker_id", worker.ID()).
		Dur("interval", cfg.ReminderPollInterval).
		Int("batch", cfg.ReminderBatchSize).
		Msg("reminder-worker starting up")

	// Run blocks until the signal context is cancelled.
	worker.Run(rootCtx)

	logger.Info().Msg("reminder-worker stopped")
}

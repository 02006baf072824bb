package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/docsure/booking-service/internal/api"
	"github.com/docsure/booking-service/internal/booking"
	"github.com/docsure/booking-service/internal/config"
	"github.com/docsure/booking-service/internal/db"
	"github.com/docsure/booking-service/internal/logging"
	"github.com/docsure/booking-service/internal/notify"
	redisclient "github.com/docsure/booking-service/internal/redis"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("prod", "info", "json", "api-server")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat, "api-server")
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("clinic_timezone", cfg.ClinicTimezone).
		Str("version", version).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns:        int32(cfg.PostgresMaxConn),
		MinConns:        int32(cfg.PostgresMinConn),
		ApplicationName: "docsure-api",
	})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	checks := []api.Check{
		{Name: "postgres", Critical: true, Ping: pgPool.Ping},
	}

	// Redis only guards reservations against stampedes, so the API still
	// starts without it.
	var locker redisclient.Locker = redisclient.NoopLocker{}
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, slot locking disabled")
	} else {
		defer closeRedis(rdb, logger)
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		checks = append(checks, api.Check{Name: "redis", Ping: redisclient.Pinger(rdb)})
		logger.Info().Msg("connected to Redis")
	}

	dispatcher := notify.NewDispatcher(notify.NewMailer(cfg.Mail, logger), cfg.Location(), logger)
	repo := booking.NewPgRepository(pgPool)
	svc := booking.NewService(repo, locker, dispatcher, cfg, logger)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Checks:  checks,
		Auth: api.AuthConfig{
			Secret:  []byte(cfg.JWTSecret),
			DevMode: cfg.IsDev() && cfg.JWTSecret == "",
		},
		Logger:  logger,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}

	logger.Info().Msg("api-server stopped")
}

func closeRedis(rdb *redis.Client, logger zerolog.Logger) {
	if err := rdb.Close(); err != nil {
		logger.Warn().Err(err).Msg("error closing redis")
	}
}

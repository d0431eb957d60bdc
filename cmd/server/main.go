package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"warungpos/internal/config"
	"warungpos/internal/httpapi"
	"warungpos/internal/notify"
	"warungpos/internal/service"
	"warungpos/internal/snapshot"
	"warungpos/internal/store/memory"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if os.Getenv("LOG_PRETTY") == "true" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := memory.NewSeeded()
	branches := memory.NewBranchStore()
	closers := make([]func() error, 0, 2)

	var snaps snapshot.Store = snapshot.Noop{}
	switch {
	case cfg.DatabaseURL != "":
		pg, err := snapshot.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start without persistence")
		}
		snaps = pg
		closers = append(closers, pg.Close)
		logger.Info().Msg("snapshots: postgres")
	case cfg.RedisAddr != "":
		rd := snapshot.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rd.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, snapshots disabled")
		} else {
			snaps = rd
			closers = append(closers, rd.Close)
			logger.Info().Msg("snapshots: redis")
		}
	default:
		logger.Info().Msg("snapshots: disabled")
	}

	notifier := notify.NewLogNotifier(logger)
	svc := service.New(repo, branches, snaps, notifier, cfg.Policy, logger)
	if err := svc.LoadState(ctx); err != nil {
		logger.Fatal().Err(err).Msg("state restore failed")
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Address()).Msg("POS backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}

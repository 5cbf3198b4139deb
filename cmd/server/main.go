package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mironalin/BeamerParts-sub003/internal/config"
	"github.com/mironalin/BeamerParts-sub003/internal/infra"
	"github.com/mironalin/BeamerParts-sub003/internal/repository"
	"github.com/mironalin/BeamerParts-sub003/internal/router"
	"github.com/mironalin/BeamerParts-sub003/internal/service"
	"github.com/mironalin/BeamerParts-sub003/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Structured logger — dev: pretty, prod: JSON
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background workers: the expiration sweeper reclaims stale holds through
	// the same release path the API uses, and the alert pool drains the
	// low-stock queue fed by reserve/adjust.
	ledgerRepo := repository.NewLedgerRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	dispatcher := worker.NewDispatcher(rdb)
	stockSvc := service.NewStockService(
		ledgerRepo, reservationRepo, movementRepo,
		rdb, dispatcher,
		time.Duration(cfg.DefaultReservationTTLMinutes)*time.Minute,
	)
	worker.StartSweeper(ctx, worker.SweeperConfig{
		Stock:        stockSvc,
		Reservations: reservationRepo,
		Interval:     time.Duration(cfg.SweepIntervalSeconds) * time.Second,
		BatchSize:    cfg.SweepBatchSize,
	})
	worker.StartWorkerPool(ctx, rdb, cfg.WorkerPoolSize)

	r := router.New(cfg, db, rdb)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("stock engine listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}

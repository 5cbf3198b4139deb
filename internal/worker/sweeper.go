package worker

// sweeper.go
// Background goroutine that periodically finds active reservations whose
// expires_at has passed and releases them through the same serialized release
// path manual callers use. Safe to run from multiple instances: the release
// path refuses already-inactive reservations, so a concurrent manual release
// (or another sweeper) can never credit the same hold twice.

import (
	"context"
	"errors"
	"time"

	"github.com/mironalin/BeamerParts-sub003/internal/dto"
	"github.com/mironalin/BeamerParts-sub003/internal/model"
	"github.com/mironalin/BeamerParts-sub003/internal/repository"
	"github.com/mironalin/BeamerParts-sub003/internal/service"

	"github.com/rs/zerolog/log"
)

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 100
)

// SweeperConfig holds all dependencies for the expiration sweeper.
type SweeperConfig struct {
	Stock        service.StockService
	Reservations repository.ReservationRepository
	Interval     time.Duration
	BatchSize    int
}

// StartSweeper launches the background goroutine. It respects the context for
// graceful shutdown.
func StartSweeper(ctx context.Context, cfg SweeperConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatchSize
	}

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		log.Info().Dur("interval", cfg.Interval).Msg("sweeper: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("sweeper: shutting down")
				return
			case <-ticker.C:
				processSweep(ctx, cfg)
			}
		}
	}()
}

// processSweep releases one batch of expired reservations. Per-reservation
// failures are logged and skipped — one bad row never aborts the batch.
func processSweep(ctx context.Context, cfg SweeperConfig) {
	expired, err := cfg.Reservations.ListExpired(ctx, time.Now(), cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("sweeper: failed to query expired reservations")
		return
	}
	if len(expired) == 0 {
		return
	}

	log.Info().Int("count", len(expired)).Msg("sweeper: releasing expired reservations")

	released := 0
	for i := range expired {
		res := &expired[i]
		id := res.ID.String()
		err := cfg.Stock.Release(ctx, dto.ReleaseRequest{
			ReservationID: &id,
			Reason:        model.ReleaseReasonExpired,
		})
		switch {
		case err == nil:
			released++
		case errors.Is(err, service.ErrReservationInactive):
			// Someone released it between the scan and now. Nothing to credit.
			log.Debug().Str("reservation_id", id).Msg("sweeper: already inactive, skipping")
		default:
			log.Warn().Err(err).
				Str("reservation_id", id).
				Str("sku", res.SKU).
				Msg("sweeper: failed to release expired reservation")
		}
	}

	if released > 0 {
		log.Info().Int("released", released).Msg("sweeper: batch done")
	}
}

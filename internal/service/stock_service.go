package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mironalin/BeamerParts-sub003/internal/dto"
	"github.com/mironalin/BeamerParts-sub003/internal/model"
	"github.com/mironalin/BeamerParts-sub003/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	// DefaultReservationTTL applies when a reserve request carries no TTL.
	DefaultReservationTTL = 30 * time.Minute

	conflictRetries = 3
	retryBackoff    = 25 * time.Millisecond
)

// LowStockNotifier receives alerts when a mutation leaves a ledger entry at or
// below its reorder point. Implemented by worker.Dispatcher; nil disables it.
type LowStockNotifier interface {
	EnqueueLowStockAlert(ctx context.Context, alert dto.LowStockAlert) error
}

// StockService is the reservation manager: every mutation of a ledger entry
// goes through here. Each operation is check-then-act inside one transaction,
// serialized per key by a keyed mutex plus a FOR UPDATE row lock and an
// optimistic version guard on the ledger row.
type StockService interface {
	Reserve(ctx context.Context, req dto.ReserveRequest) (*dto.ReserveResponse, error)
	Release(ctx context.Context, req dto.ReleaseRequest) error
	AdjustStock(ctx context.Context, req dto.AdjustRequest) (*dto.LedgerSnapshot, error)
	IsAvailable(ctx context.Context, key dto.ProductKey, quantity int) (bool, error)
}

type stockService struct {
	ledger       repository.LedgerRepository
	reservations repository.ReservationRepository
	movements    repository.MovementRepository
	rdb          *redis.Client
	notifier     LowStockNotifier
	defaultTTL   time.Duration

	// locks holds one mutex per ledger key so in-process callers serialize
	// before touching the row; cross-process callers serialize on the DB lock.
	locks sync.Map
}

func NewStockService(
	ledger repository.LedgerRepository,
	reservations repository.ReservationRepository,
	movements repository.MovementRepository,
	rdb *redis.Client,
	notifier LowStockNotifier,
	defaultTTL time.Duration,
) StockService {
	if defaultTTL <= 0 {
		defaultTTL = DefaultReservationTTL
	}
	return &stockService{
		ledger:       ledger,
		reservations: reservations,
		movements:    movements,
		rdb:          rdb,
		notifier:     notifier,
		defaultTTL:   defaultTTL,
	}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

func (s *stockService) keyLock(sku, variantSKU string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sku+"|"+variantSKU, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// withRetry runs op, retrying version/storage conflicts a bounded number of
// times with linear backoff. Business-rule failures are never retried.
func (s *stockService) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
		err = op()
		if err == nil || IsBusinessError(err) {
			return err
		}
	}
	if errors.Is(err, ErrConcurrentModification) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

// ── Reserve ──────────────────────────────────────────────────────────────────

func (s *stockService) Reserve(ctx context.Context, req dto.ReserveRequest) (*dto.ReserveResponse, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	ttl := s.defaultTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	var resp dto.ReserveResponse
	var alert *dto.LowStockAlert

	err := s.withRetry(ctx, func() error {
		mu := s.keyLock(req.SKU, req.VariantSKU)
		mu.Lock()
		defer mu.Unlock()

		alert = nil
		return runTx(ctx, s.ledger.DB(), func(tx *gorm.DB) error {
			entry, err := s.ledger.FindByKeyTx(tx, req.SKU, req.VariantSKU, true)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if entry.QuantityAvailable < req.Quantity {
				return ErrInsufficientStock
			}

			before := entry.QuantityAvailable
			if err := s.updateCounts(tx, entry, before-req.Quantity, entry.QuantityReserved+req.Quantity); err != nil {
				return err
			}

			now := time.Now()
			res := model.Reservation{
				ID:         uuid.New(),
				SKU:        req.SKU,
				VariantSKU: req.VariantSKU,
				Quantity:   req.Quantity,
				HolderID:   req.HolderID,
				SourceRef:  req.SourceRef,
				Active:     true,
				ExpiresAt:  now.Add(ttl),
				CreatedAt:  now,
			}
			if err := s.reservations.CreateTx(tx, &res); err != nil {
				return err
			}

			refID := res.ID
			mov := model.StockMovement{
				SKU:             req.SKU,
				VariantSKU:      req.VariantSKU,
				Type:            model.MovementReserved,
				Quantity:        -req.Quantity,
				AvailableBefore: before,
				AvailableAfter:  entry.QuantityAvailable,
				Reason:          fmt.Sprintf("reserved for holder %s", req.HolderID),
				ReferenceID:     &refID,
				Actor:           req.HolderID,
			}
			if err := s.movements.CreateTx(tx, &mov); err != nil {
				return err
			}

			if entry.ReorderPoint > 0 && entry.QuantityAvailable <= entry.ReorderPoint {
				alert = &dto.LowStockAlert{
					SKU:          entry.SKU,
					VariantSKU:   entry.VariantSKU,
					Available:    entry.QuantityAvailable,
					ReorderPoint: entry.ReorderPoint,
					Trigger:      "reserve",
				}
			}

			resp = dto.ReserveResponse{
				ReservationID:      res.ID.String(),
				RemainingAvailable: entry.QuantityAvailable,
				ExpiresAt:          res.ExpiresAt.UTC().Format(time.RFC3339),
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx, req.SKU, req.VariantSKU)
	s.notifyLowStock(ctx, alert)
	return &resp, nil
}

// ── Release ──────────────────────────────────────────────────────────────────

func (s *stockService) Release(ctx context.Context, req dto.ReleaseRequest) error {
	if req.ReservationID != nil {
		return s.releaseByReservation(ctx, req)
	}
	if req.SKU == "" || req.Quantity == nil {
		return ErrInvalidQuantity
	}
	return s.releaseByKey(ctx, req)
}

// releaseByReservation releases the full amount still held by one reservation.
// Cancellation is one-shot: a quantity that does not match the hold is rejected
// rather than treated as an in-place downgrade.
func (s *stockService) releaseByReservation(ctx context.Context, req dto.ReleaseRequest) error {
	id, err := uuid.Parse(*req.ReservationID)
	if err != nil {
		return ErrReservationNotFound
	}

	// The key is on the reservation row; read it outside the lock scope to
	// know which mutex to take, then re-read inside the transaction.
	var existing *model.Reservation
	err = s.withRetry(ctx, func() error {
		var ferr error
		existing, ferr = s.reservations.FindByID(ctx, id)
		if ferr != nil {
			if errors.Is(ferr, gorm.ErrRecordNotFound) {
				return ErrReservationNotFound
			}
			return ferr
		}
		return nil
	})
	if err != nil {
		return err
	}

	var sku, variantSKU string
	err = s.withRetry(ctx, func() error {
		mu := s.keyLock(existing.SKU, existing.VariantSKU)
		mu.Lock()
		defer mu.Unlock()

		return runTx(ctx, s.ledger.DB(), func(tx *gorm.DB) error {
			// Ledger row first, reservation rows second. releaseByKey acquires
			// in the same order, so two release transactions never hold the two
			// rows crosswise.
			entry, err := s.ledger.FindByKeyTx(tx, existing.SKU, existing.VariantSKU, true)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}

			res, err := s.reservations.FindByIDTx(tx, id, true)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrReservationNotFound
				}
				return err
			}
			if !res.Active {
				return ErrReservationInactive
			}
			if req.Quantity != nil && *req.Quantity != res.Quantity {
				return ErrInvalidQuantity
			}
			sku, variantSKU = res.SKU, res.VariantSKU
			if entry.QuantityReserved < res.Quantity {
				return ErrOverRelease
			}

			now := time.Now()
			deactivated, err := s.reservations.DeactivateTx(tx, res.ID, req.Reason, now)
			if err != nil {
				return err
			}
			if !deactivated {
				// Lost the race against the sweeper; the credit already happened.
				return ErrReservationInactive
			}

			before := entry.QuantityAvailable
			if err := s.updateCounts(tx, entry, before+res.Quantity, entry.QuantityReserved-res.Quantity); err != nil {
				return err
			}

			refID := res.ID
			mov := model.StockMovement{
				SKU:             res.SKU,
				VariantSKU:      res.VariantSKU,
				Type:            model.MovementReleased,
				Quantity:        res.Quantity,
				AvailableBefore: before,
				AvailableAfter:  entry.QuantityAvailable,
				Reason:          req.Reason,
				ReferenceID:     &refID,
				Actor:           res.HolderID,
			}
			return s.movements.CreateTx(tx, &mov)
		})
	})
	if err != nil {
		return err
	}

	s.invalidateSnapshot(ctx, sku, variantSKU)
	return nil
}

// releaseByKey credits quantity back to a key by deactivating its active
// reservations oldest-first. A partially covered reservation has its quantity
// reduced in place so the sum of active holds always equals the reserved count.
func (s *stockService) releaseByKey(ctx context.Context, req dto.ReleaseRequest) error {
	quantity := *req.Quantity
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	err := s.withRetry(ctx, func() error {
		mu := s.keyLock(req.SKU, req.VariantSKU)
		mu.Lock()
		defer mu.Unlock()

		return runTx(ctx, s.ledger.DB(), func(tx *gorm.DB) error {
			entry, err := s.ledger.FindByKeyTx(tx, req.SKU, req.VariantSKU, true)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if quantity > entry.QuantityReserved {
				return ErrOverRelease
			}

			active, err := s.reservations.ListActiveByKeyTx(tx, req.SKU, req.VariantSKU)
			if err != nil {
				return err
			}

			now := time.Now()
			remaining := quantity
			var lastRef *uuid.UUID
			for i := range active {
				if remaining == 0 {
					break
				}
				res := &active[i]
				if res.Quantity <= remaining {
					deactivated, err := s.reservations.DeactivateTx(tx, res.ID, req.Reason, now)
					if err != nil {
						return err
					}
					if !deactivated {
						continue
					}
					remaining -= res.Quantity
				} else {
					if err := s.reservations.ReduceQuantityTx(tx, res.ID, res.Quantity-remaining); err != nil {
						return err
					}
					remaining = 0
				}
				refID := res.ID
				lastRef = &refID
			}
			if remaining > 0 {
				// Reserved count and active holds disagree — refuse rather than
				// credit stock that no reservation is holding.
				return ErrOverRelease
			}

			before := entry.QuantityAvailable
			if err := s.updateCounts(tx, entry, before+quantity, entry.QuantityReserved-quantity); err != nil {
				return err
			}

			mov := model.StockMovement{
				SKU:             req.SKU,
				VariantSKU:      req.VariantSKU,
				Type:            model.MovementReleased,
				Quantity:        quantity,
				AvailableBefore: before,
				AvailableAfter:  entry.QuantityAvailable,
				Reason:          req.Reason,
				ReferenceID:     lastRef,
				Actor:           "system",
			}
			return s.movements.CreateTx(tx, &mov)
		})
	})
	if err != nil {
		return err
	}

	s.invalidateSnapshot(ctx, req.SKU, req.VariantSKU)
	return nil
}

// ── AdjustStock ──────────────────────────────────────────────────────────────

// AdjustStock sets the available count for receiving and corrections,
// independent of the reservation flow. The ledger entry is created lazily with
// zero stock when absent, so the first receiving of a new part just works.
func (s *stockService) AdjustStock(ctx context.Context, req dto.AdjustRequest) (*dto.LedgerSnapshot, error) {
	if req.NewAvailable < 0 {
		return nil, ErrInvalidQuantity
	}

	var snap dto.LedgerSnapshot
	var alert *dto.LowStockAlert

	err := s.withRetry(ctx, func() error {
		mu := s.keyLock(req.SKU, req.VariantSKU)
		mu.Lock()
		defer mu.Unlock()

		alert = nil
		return runTx(ctx, s.ledger.DB(), func(tx *gorm.DB) error {
			entry, err := s.ledger.FindByKeyTx(tx, req.SKU, req.VariantSKU, true)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				entry = &model.StockLedgerEntry{
					ID:         uuid.New(),
					SKU:        req.SKU,
					VariantSKU: req.VariantSKU,
				}
				if err := s.ledger.CreateTx(tx, entry); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			if req.NewAvailable < entry.QuantityReserved {
				return ErrBelowReserved
			}

			delta := req.NewAvailable - entry.QuantityAvailable
			before := entry.QuantityAvailable

			thresholdsChanged := false
			minimum, reorder := entry.MinimumStockLevel, entry.ReorderPoint
			if req.MinimumStockLevel != nil && *req.MinimumStockLevel != minimum {
				minimum = *req.MinimumStockLevel
				thresholdsChanged = true
			}
			if req.ReorderPoint != nil && *req.ReorderPoint != reorder {
				reorder = *req.ReorderPoint
				thresholdsChanged = true
			}
			if thresholdsChanged {
				if err := s.ledger.UpdateThresholdsTx(tx, entry, minimum, reorder); err != nil {
					return err
				}
			}

			switch {
			case delta != 0:
				if err := s.updateCounts(tx, entry, req.NewAvailable, entry.QuantityReserved); err != nil {
					return err
				}
				mov := model.StockMovement{
					SKU:             req.SKU,
					VariantSKU:      req.VariantSKU,
					Type:            model.MovementIncoming,
					Quantity:        delta,
					AvailableBefore: before,
					AvailableAfter:  req.NewAvailable,
					Reason:          req.Reason,
					Actor:           req.Actor,
				}
				if delta < 0 {
					mov.Type = model.MovementOutgoing
				} else {
					mov.UnitCost = req.UnitCost
				}
				if err := s.movements.CreateTx(tx, &mov); err != nil {
					return err
				}
			case thresholdsChanged:
				// Audit the threshold change even though no counter moved.
				mov := model.StockMovement{
					SKU:             req.SKU,
					VariantSKU:      req.VariantSKU,
					Type:            model.MovementAdjustment,
					Quantity:        0,
					AvailableBefore: before,
					AvailableAfter:  before,
					Reason:          req.Reason,
					Actor:           req.Actor,
				}
				if err := s.movements.CreateTx(tx, &mov); err != nil {
					return err
				}
			}

			if entry.ReorderPoint > 0 && entry.QuantityAvailable <= entry.ReorderPoint {
				alert = &dto.LowStockAlert{
					SKU:          entry.SKU,
					VariantSKU:   entry.VariantSKU,
					Available:    entry.QuantityAvailable,
					ReorderPoint: entry.ReorderPoint,
					Trigger:      "adjust",
				}
			}

			snap = snapshotFrom(entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx, req.SKU, req.VariantSKU)
	s.notifyLowStock(ctx, alert)
	return &snap, nil
}

// ── Read side ────────────────────────────────────────────────────────────────

// IsAvailable reports whether quantity units can currently be reserved.
// Absent entries and non-positive quantities are simply not available.
func (s *stockService) IsAvailable(ctx context.Context, key dto.ProductKey, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, nil
	}
	entry, err := s.ledger.FindByKey(ctx, key.SKU, key.VariantSKU)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return entry.QuantityAvailable >= quantity, nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (s *stockService) updateCounts(tx *gorm.DB, entry *model.StockLedgerEntry, available, reserved int) error {
	if err := s.ledger.UpdateCountsTx(tx, entry, available, reserved); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ErrConcurrentModification
		}
		return err
	}
	return nil
}

func (s *stockService) invalidateSnapshot(ctx context.Context, sku, variantSKU string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, snapshotCacheKey(sku, variantSKU)).Err(); err != nil {
		log.Warn().Err(err).Str("sku", sku).Msg("failed to invalidate snapshot cache")
	}
}

func (s *stockService) notifyLowStock(ctx context.Context, alert *dto.LowStockAlert) {
	if alert == nil || s.notifier == nil {
		return
	}
	// Best effort — an alert must never fail the stock operation.
	if err := s.notifier.EnqueueLowStockAlert(ctx, *alert); err != nil {
		log.Warn().Err(err).Str("sku", alert.SKU).Msg("failed to enqueue low stock alert")
	}
}

func snapshotCacheKey(sku, variantSKU string) string {
	return "stock:" + sku + "|" + variantSKU
}

func snapshotFrom(e *model.StockLedgerEntry) dto.LedgerSnapshot {
	return dto.LedgerSnapshot{
		SKU:               e.SKU,
		VariantSKU:        e.VariantSKU,
		Available:         e.QuantityAvailable,
		Reserved:          e.QuantityReserved,
		Total:             e.QuantityAvailable + e.QuantityReserved,
		InStock:           e.QuantityAvailable > 0,
		LowStock:          e.QuantityAvailable <= e.ReorderPoint,
		BelowMinimum:      e.QuantityAvailable < e.MinimumStockLevel,
		MinimumStockLevel: e.MinimumStockLevel,
		ReorderPoint:      e.ReorderPoint,
		UpdatedAt:         e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mironalin/BeamerParts-sub003/internal/dto"
	"github.com/mironalin/BeamerParts-sub003/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict is returned when a conditional counter update matches no
// row, meaning another transaction moved the ledger version first.
var ErrVersionConflict = errors.New("ledger version conflict")

// LedgerRepository is the data access contract for stock ledger entries.
// Services depend on this interface, not on the concrete GORM implementation,
// enabling clean unit testing via in-memory stubs.
type LedgerRepository interface {
	FindByKey(ctx context.Context, sku, variantSKU string) (*model.StockLedgerEntry, error)
	ListByKeys(ctx context.Context, keys []dto.ProductKey) ([]model.StockLedgerEntry, error)

	// Used inside transactions — callers must pass the tx instance.
	FindByKeyTx(tx *gorm.DB, sku, variantSKU string, forUpdate bool) (*model.StockLedgerEntry, error)
	CreateTx(tx *gorm.DB, e *model.StockLedgerEntry) error
	// UpdateCountsTx writes the counters guarded by e.Version and bumps it.
	// Returns ErrVersionConflict when the guard matches no row.
	UpdateCountsTx(tx *gorm.DB, e *model.StockLedgerEntry, available, reserved int) error
	UpdateThresholdsTx(tx *gorm.DB, e *model.StockLedgerEntry, minimum, reorder int) error

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type ledgerRepo struct{ db *gorm.DB }

func NewLedgerRepository(db *gorm.DB) LedgerRepository { return &ledgerRepo{db: db} }

func (r *ledgerRepo) FindByKey(ctx context.Context, sku, variantSKU string) (*model.StockLedgerEntry, error) {
	var e model.StockLedgerEntry
	err := r.db.WithContext(ctx).
		Where("sku = ? AND variant_sku = ?", sku, variantSKU).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ledgerRepo) ListByKeys(ctx context.Context, keys []dto.ProductKey) ([]model.StockLedgerEntry, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pairs := make([][]interface{}, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, []interface{}{k.SKU, k.VariantSKU})
	}
	var entries []model.StockLedgerEntry
	err := r.db.WithContext(ctx).
		Where("(sku, variant_sku) IN ?", pairs).
		Find(&entries).Error
	return entries, err
}

func (r *ledgerRepo) FindByKeyTx(tx *gorm.DB, sku, variantSKU string, forUpdate bool) (*model.StockLedgerEntry, error) {
	q := tx
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var e model.StockLedgerEntry
	err := q.Where("sku = ? AND variant_sku = ?", sku, variantSKU).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ledgerRepo) CreateTx(tx *gorm.DB, e *model.StockLedgerEntry) error {
	return tx.Create(e).Error
}

func (r *ledgerRepo) UpdateCountsTx(tx *gorm.DB, e *model.StockLedgerEntry, available, reserved int) error {
	res := tx.Model(&model.StockLedgerEntry{}).
		Where("id = ? AND version = ?", e.ID, e.Version).
		Updates(map[string]interface{}{
			"quantity_available": available,
			"quantity_reserved":  reserved,
			"version":            e.Version + 1,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	e.QuantityAvailable = available
	e.QuantityReserved = reserved
	e.Version++
	return nil
}

func (r *ledgerRepo) UpdateThresholdsTx(tx *gorm.DB, e *model.StockLedgerEntry, minimum, reorder int) error {
	res := tx.Model(&model.StockLedgerEntry{}).
		Where("id = ? AND version = ?", e.ID, e.Version).
		Updates(map[string]interface{}{
			"minimum_stock_level": minimum,
			"reorder_point":       reorder,
			"version":             e.Version + 1,
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	e.MinimumStockLevel = minimum
	e.ReorderPoint = reorder
	e.Version++
	return nil
}

func (r *ledgerRepo) DB() *gorm.DB { return r.db }

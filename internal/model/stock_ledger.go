package model

import (
	"time"

	"github.com/google/uuid"
)

// StockLedgerEntry is the durable per-(sku, variant) stock record.
// VariantSKU is empty for products without variants; the pair is unique.
// QuantityAvailable and QuantityReserved only ever change inside an audited
// operation — every mutation appends a StockMovement in the same transaction.
type StockLedgerEntry struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SKU               string    `gorm:"not null;uniqueIndex:idx_ledger_key,priority:1"`
	VariantSKU        string    `gorm:"not null;default:'';uniqueIndex:idx_ledger_key,priority:2"`
	QuantityAvailable int       `gorm:"not null;default:0"`
	QuantityReserved  int       `gorm:"not null;default:0"`
	MinimumStockLevel int       `gorm:"not null;default:0"`
	ReorderPoint      int       `gorm:"not null;default:0"`
	// Version guards concurrent updates: every counter write increments it and
	// is conditioned on the value read at the start of the transaction.
	Version   int64 `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides GORM's default pluralization (stock_ledger_entries → stock_ledger).
func (StockLedgerEntry) TableName() string { return "stock_ledger" }

package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Movement types. Incoming/outgoing come from stock adjustments, reserved/
// released from the reservation flow, adjustment from zero-delta corrections
// (threshold changes recorded for audit without a counter change).
const (
	MovementIncoming   = "incoming"
	MovementOutgoing   = "outgoing"
	MovementAdjustment = "adjustment"
	MovementReserved   = "reserved"
	MovementReleased   = "released"
)

// StockMovement records every change to a ledger entry. Append-only: rows are
// never updated or deleted.
type StockMovement struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SKU        string    `gorm:"not null;index:idx_movements_key,priority:1"`
	VariantSKU string    `gorm:"not null;default:'';index:idx_movements_key,priority:2"`
	Type       string    `gorm:"not null;index"`
	// Quantity is the signed delta applied to quantity_available
	// (negative for outgoing and reserved, positive for incoming and released).
	Quantity        int `gorm:"not null"`
	AvailableBefore int `gorm:"not null"`
	AvailableAfter  int `gorm:"not null"`
	Reason          string
	// ReferenceID points at the reservation or external document that caused
	// the movement, when there is one.
	ReferenceID *uuid.UUID `gorm:"type:uuid"`
	Actor       string     `gorm:"not null;index"`
	// UnitCost is captured on incoming movements when the receiving flow knows
	// it, for later stock valuation. Pricing itself lives outside this service.
	UnitCost  *decimal.Decimal `gorm:"type:decimal(10,2)"`
	CreatedAt time.Time        `gorm:"index"`
}

func (StockMovement) TableName() string { return "stock_movements" }

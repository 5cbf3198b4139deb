package model

import (
	"time"

	"github.com/google/uuid"
)

// Release reasons written by the engine itself. Manual callers supply their own.
const (
	ReleaseReasonExpired = "expired"
)

// Reservation is a time-bounded hold on a quantity of stock for one holder.
// Lifecycle: created active, then released (manual) or expired (sweeper) —
// both terminal. An inactive reservation is retained for audit and is never
// reactivated or credited a second time.
type Reservation struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SKU        string    `gorm:"not null;index:idx_reservations_key,priority:1"`
	VariantSKU string    `gorm:"not null;default:'';index:idx_reservations_key,priority:2"`
	Quantity   int       `gorm:"not null"`
	HolderID   string    `gorm:"not null;index"`
	// SourceRef optionally ties the hold to an order / cart identifier.
	SourceRef     *string
	Active        bool      `gorm:"not null;default:true;index"`
	ExpiresAt     time.Time `gorm:"not null;index"`
	ReleasedAt    *time.Time
	ReleaseReason *string
	CreatedAt     time.Time
}

func (Reservation) TableName() string { return "reservations" }

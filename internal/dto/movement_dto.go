package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementFilter narrows the movement log listing. All fields optional.
type MovementFilter struct {
	SKU        string
	VariantSKU string
	Type       string
	Actor      string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

type MovementResponse struct {
	ID              string           `json:"id"`
	SKU             string           `json:"sku"`
	VariantSKU      string           `json:"variant_sku"`
	Type            string           `json:"type"`
	Quantity        int              `json:"quantity"`
	AvailableBefore int              `json:"available_before"`
	AvailableAfter  int              `json:"available_after"`
	Reason          string           `json:"reason"`
	ReferenceID     *string          `json:"reference_id"`
	Actor           string           `json:"actor"`
	UnitCost        *decimal.Decimal `json:"unit_cost"`
	CreatedAt       string           `json:"created_at"`
}

type MovementListResponse struct {
	Data  []MovementResponse `json:"data"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

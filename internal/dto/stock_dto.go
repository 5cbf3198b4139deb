package dto

import "github.com/shopspring/decimal"

// ProductKey identifies one ledger entry. VariantSKU empty = base product.
type ProductKey struct {
	SKU        string `json:"sku" validate:"required"`
	VariantSKU string `json:"variant_sku"`
}

type ReserveRequest struct {
	SKU        string `json:"sku" validate:"required"`
	VariantSKU string `json:"variant_sku"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	HolderID   string `json:"holder_id" validate:"required"`
	// TTLMinutes defaults to the configured reservation TTL when zero.
	TTLMinutes int     `json:"ttl_minutes" validate:"omitempty,gt=0"`
	SourceRef  *string `json:"source_ref"`
}

type ReserveResponse struct {
	ReservationID      string `json:"reservation_id"`
	RemainingAvailable int    `json:"remaining_available"`
	ExpiresAt          string `json:"expires_at"`
}

// ReleaseRequest releases held stock either by reservation id (full amount)
// or by product key (oldest active reservations first).
type ReleaseRequest struct {
	SKU           string  `json:"sku"`
	VariantSKU    string  `json:"variant_sku"`
	Quantity      *int    `json:"quantity" validate:"omitempty,gt=0"`
	ReservationID *string `json:"reservation_id"`
	Reason        string  `json:"reason" validate:"required"`
}

type AdjustRequest struct {
	SKU          string `json:"sku" validate:"required"`
	VariantSKU   string `json:"variant_sku"`
	NewAvailable int    `json:"new_available" validate:"min=0"`
	Reason       string `json:"reason" validate:"required"`
	Actor        string `json:"actor" validate:"required"`
	// Optional threshold updates applied alongside the count correction.
	MinimumStockLevel *int `json:"minimum_stock_level" validate:"omitempty,min=0"`
	ReorderPoint      *int `json:"reorder_point" validate:"omitempty,min=0"`
	// UnitCost of received stock, recorded on the incoming movement.
	UnitCost *decimal.Decimal `json:"unit_cost"`
}

// LedgerSnapshot is the consumer-facing read model of one ledger entry.
type LedgerSnapshot struct {
	SKU               string `json:"sku"`
	VariantSKU        string `json:"variant_sku"`
	Available         int    `json:"available"`
	Reserved          int    `json:"reserved"`
	Total             int    `json:"total"`
	InStock           bool   `json:"in_stock"`
	LowStock          bool   `json:"low_stock"`
	BelowMinimum      bool   `json:"below_minimum"`
	MinimumStockLevel int    `json:"minimum_stock_level"`
	ReorderPoint      int    `json:"reorder_point"`
	UpdatedAt         string `json:"updated_at"`
}

type BulkQueryRequest struct {
	Items []ProductKey `json:"items" validate:"required,min=1,max=200,dive"`
}

type BulkQueryResponse struct {
	Items []LedgerSnapshot `json:"items"`
}

type AvailabilityResponse struct {
	SKU        string `json:"sku"`
	VariantSKU string `json:"variant_sku"`
	Quantity   int    `json:"quantity"`
	Available  bool   `json:"available"`
}

package dto

// LowStockAlert is the payload enqueued when a mutation leaves a ledger entry
// at or below its reorder point.
type LowStockAlert struct {
	SKU          string `json:"sku"`
	VariantSKU   string `json:"variant_sku"`
	Available    int    `json:"available"`
	ReorderPoint int    `json:"reorder_point"`
	Trigger      string `json:"trigger"` // "reserve" | "adjust"
}

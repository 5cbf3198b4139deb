package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mironalin/BeamerParts-sub003/internal/apierror"
	"github.com/mironalin/BeamerParts-sub003/internal/dto"
	"github.com/mironalin/BeamerParts-sub003/internal/service"

	"github.com/gin-gonic/gin"
)

// StockHandler exposes the reservation manager and query facade over HTTP.
type StockHandler struct {
	stock service.StockService
	query service.QueryService
}

func NewStockHandler(stock service.StockService, query service.QueryService) *StockHandler {
	return &StockHandler{stock: stock, query: query}
}

func (h *StockHandler) Reserve(c *gin.Context) {
	var req dto.ReserveRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.stock.Reserve(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *StockHandler) Release(c *gin.Context) {
	var req dto.ReleaseRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.stock.Release(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *StockHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if !bindAndValidate(c, &req) {
		return
	}
	snap, err := h.stock.AdjustStock(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *StockHandler) Query(c *gin.Context) {
	key := dto.ProductKey{
		SKU:        c.Param("sku"),
		VariantSKU: c.Query("variant_sku"),
	}
	snap, err := h.query.Snapshot(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *StockHandler) BulkQuery(c *gin.Context) {
	var req dto.BulkQueryRequest
	if !bindAndValidate(c, &req) {
		return
	}
	items, err := h.query.BulkSnapshot(c.Request.Context(), req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.BulkQueryResponse{Items: items})
}

func (h *StockHandler) Availability(c *gin.Context) {
	quantity, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil || quantity <= 0 {
		c.JSON(http.StatusUnprocessableEntity, apierror.New("quantity must be a positive integer"))
		return
	}
	key := dto.ProductKey{
		SKU:        c.Param("sku"),
		VariantSKU: c.Query("variant_sku"),
	}
	ok, err := h.stock.IsAvailable(c.Request.Context(), key, quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AvailabilityResponse{
		SKU:        key.SKU,
		VariantSKU: key.VariantSKU,
		Quantity:   quantity,
		Available:  ok,
	})
}

// parseTimeQuery accepts RFC3339 or plain dates for movement range filters.
func parseTimeQuery(raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	return nil, false
}

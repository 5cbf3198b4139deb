package handler

import (
	"net/http"
	"strconv"

	"github.com/mironalin/BeamerParts-sub003/internal/apierror"
	"github.com/mironalin/BeamerParts-sub003/internal/dto"
	"github.com/mironalin/BeamerParts-sub003/internal/model"
	"github.com/mironalin/BeamerParts-sub003/internal/repository"

	"github.com/gin-gonic/gin"
)

// MovementsHandler serves the read side of the audit trail. There is no write
// endpoint: movements are only ever appended by the reservation manager.
type MovementsHandler struct {
	repo repository.MovementRepository
}

func NewMovementsHandler(repo repository.MovementRepository) *MovementsHandler {
	return &MovementsHandler{repo: repo}
}

func (h *MovementsHandler) List(c *gin.Context) {
	filter := dto.MovementFilter{
		SKU:        c.Query("sku"),
		VariantSKU: c.Query("variant_sku"),
		Type:       c.Query("type"),
		Actor:      c.Query("actor"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))

	from, ok := parseTimeQuery(c.Query("from"))
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, apierror.New("invalid 'from' timestamp"))
		return
	}
	filter.From = from

	to, ok := parseTimeQuery(c.Query("to"))
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, apierror.New("invalid 'to' timestamp"))
		return
	}
	filter.To = to

	movements, total, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("failed to list stock movements"))
		return
	}

	items := make([]dto.MovementResponse, 0, len(movements))
	for i := range movements {
		items = append(items, movementToResponse(&movements[i]))
	}
	c.JSON(http.StatusOK, dto.MovementListResponse{
		Data:  items,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}

func movementToResponse(m *model.StockMovement) dto.MovementResponse {
	var ref *string
	if m.ReferenceID != nil {
		s := m.ReferenceID.String()
		ref = &s
	}
	return dto.MovementResponse{
		ID:              m.ID.String(),
		SKU:             m.SKU,
		VariantSKU:      m.VariantSKU,
		Type:            m.Type,
		Quantity:        m.Quantity,
		AvailableBefore: m.AvailableBefore,
		AvailableAfter:  m.AvailableAfter,
		Reason:          m.Reason,
		ReferenceID:     ref,
		Actor:           m.Actor,
		UnitCost:        m.UnitCost,
		CreatedAt:       m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// internal/interfaces/http/handlers/lot.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/your-org/inventory-ledger/internal/domain/lot"
	"github.com/your-org/inventory-ledger/internal/interfaces/http/middleware"
)

// LotHandler handles lot queries and adjustments
type LotHandler struct {
	lots *lot.Service
}

// NewLotHandler creates a new lot handler
func NewLotHandler(lots *lot.Service) *LotHandler {
	return &LotHandler{lots: lots}
}

// List handles GET /inventory/lots
func (h *LotHandler) List(c *gin.Context) {
	itemID, ok := optionalUUIDQuery(c, "catalog_item_id")
	if !ok {
		return
	}
	locationID, ok := optionalUUIDQuery(c, "location_id")
	if !ok {
		return
	}

	lots, err := h.lots.List(c.Request.Context(), middleware.TenantID(c), lot.ListFilter{
		CatalogItemID: itemID,
		LocationID:    locationID,
		Status:        lot.LotStatus(c.Query("status")),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Lots retrieved successfully",
		"data":    lots,
	})
}

// Get handles GET /inventory/lots/:id
func (h *LotHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	l, err := h.lots.Get(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Lot retrieved successfully",
		"data":    l,
	})
}

// AdjustCost handles POST /inventory/lots/:id/adjust-cost
func (h *LotHandler) AdjustCost(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		UnitCost decimal.Decimal `json:"unit_cost"`
		lot.AdjustRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	event, err := h.lots.AdjustCost(c.Request.Context(), middleware.TenantID(c), middleware.ActorID(c), id, req.UnitCost, &req.AdjustRequest)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Lot cost adjusted",
		"data":    event,
	})
}

// AdjustQuantity handles POST /inventory/lots/:id/adjust-quantity
func (h *LotHandler) AdjustQuantity(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Delta int64 `json:"delta"`
		lot.AdjustRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	event, err := h.lots.AdjustQuantity(c.Request.Context(), middleware.TenantID(c), middleware.ActorID(c), id, req.Delta, &req.AdjustRequest)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Lot quantity adjusted",
		"data":    event,
	})
}

// Close handles POST /inventory/lots/:id/close
func (h *LotHandler) Close(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req lot.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	l, err := h.lots.Close(c.Request.Context(), middleware.TenantID(c), middleware.ActorID(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Lot closed",
		"data":    l,
	})
}

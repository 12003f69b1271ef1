// internal/interfaces/http/handlers/inventory.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/inventory-ledger/internal/domain/inventory"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/domain/lot"
	"github.com/your-org/inventory-ledger/internal/interfaces/http/middleware"
	"github.com/your-org/inventory-ledger/internal/pkg/pdf"
)

// InventoryHandler handles receipts, stock queries, reservations and trace
type InventoryHandler struct {
	services *inventory.Services
	reports  *pdf.Service
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(services *inventory.Services, reports *pdf.Service) *InventoryHandler {
	return &InventoryHandler{
		services: services,
		reports:  reports,
	}
}

// Receive handles POST /inventory/receive
func (h *InventoryHandler) Receive(c *gin.Context) {
	var req lot.ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.services.Lots.Receive(c.Request.Context(), middleware.TenantID(c), middleware.ActorID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Stock received successfully",
		"data": gin.H{
			"lot_id":   result.Lot.ID,
			"event_id": result.Event.ID,
			"lot":      result.Lot,
		},
	})
}

// GetProjection handles GET /inventory/projections/:catalogItemId/:locationId
func (h *InventoryHandler) GetProjection(c *gin.Context) {
	key, ok := partitionParams(c)
	if !ok {
		return
	}

	projection, err := h.services.Projections.Get(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Projection retrieved successfully",
		"data":    projection,
	})
}

// GetEvents handles GET /inventory/projections/:catalogItemId/:locationId/events
func (h *InventoryHandler) GetEvents(c *gin.Context) {
	key, ok := partitionParams(c)
	if !ok {
		return
	}

	after := int64(intQuery(c, "after", 0))
	limit := intQuery(c, "limit", 100)

	events, err := h.services.Ledger.Events(c.Request.Context(), key, after, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	var next *int64
	if len(events) > 0 {
		last := events[len(events)-1].SequenceNumber
		next = &last
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Events retrieved successfully",
		"data":    events,
		"next":    next,
	})
}

// GetStockLevel handles GET /inventory/stock/:catalogItemId
func (h *InventoryHandler) GetStockLevel(c *gin.Context) {
	itemID, ok := uuidParam(c, "catalogItemId")
	if !ok {
		return
	}
	locationID, ok := optionalUUIDQuery(c, "location_id")
	if !ok {
		return
	}

	level, err := h.services.Inventory.StockLevel(c.Request.Context(), middleware.TenantID(c), itemID, locationID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock level retrieved successfully",
		"data":    level,
	})
}

// Verify handles GET /inventory/verify/:catalogItemId/:locationId
func (h *InventoryHandler) Verify(c *gin.Context) {
	key, ok := partitionParams(c)
	if !ok {
		return
	}

	result, err := h.services.Verifier.Verify(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Chain verified",
		"data":    result,
	})
}

func partitionParams(c *gin.Context) (ledger.PartitionKey, bool) {
	itemID, ok := uuidParam(c, "catalogItemId")
	if !ok {
		return ledger.PartitionKey{}, false
	}
	locationID, ok := uuidParam(c, "locationId")
	if !ok {
		return ledger.PartitionKey{}, false
	}
	return ledger.NewPartitionKey(middleware.TenantID(c), itemID, locationID), true
}

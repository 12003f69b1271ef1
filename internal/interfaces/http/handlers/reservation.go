// internal/interfaces/http/handlers/reservation.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/inventory-ledger/internal/domain/allocation"
	"github.com/your-org/inventory-ledger/internal/domain/inventory"
	"github.com/your-org/inventory-ledger/internal/interfaces/http/middleware"
)

type receiptRequest struct {
	ReceiptID string `json:"receipt_id" binding:"required,max=128"`
}

// Reserve handles POST /inventory/reservations
func (h *InventoryHandler) Reserve(c *gin.Context) {
	var req allocation.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	a, err := h.services.Allocations.Reserve(c.Request.Context(), middleware.TenantID(c), middleware.ActorID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Stock reserved successfully",
		"data": gin.H{
			"allocation_id": a.ID,
			"expires_at":    a.ExpiresAt,
			"allocation":    a,
		},
	})
}

// GetReservation handles GET /inventory/reservations/:id
func (h *InventoryHandler) GetReservation(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	a, err := h.services.Allocations.Get(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reservation retrieved successfully",
		"data":    a,
	})
}

// Fulfill handles POST /inventory/reservations/:id/fulfill
func (h *InventoryHandler) Fulfill(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	a, eventIDs, err := h.services.Allocations.Fulfill(c.Request.Context(), middleware.TenantID(c), middleware.ActorID(c), id, req.ReceiptID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reservation fulfilled successfully",
		"data": gin.H{
			"event_ids":  eventIDs,
			"allocation": a,
		},
	})
}

// Release handles POST /inventory/reservations/:id/release
func (h *InventoryHandler) Release(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	a, err := h.services.Allocations.Release(c.Request.Context(), middleware.TenantID(c), middleware.ActorID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reservation released",
		"ok":      true,
		"data":    a,
	})
}

// ReserveCart handles POST /inventory/carts/reserve
func (h *InventoryHandler) ReserveCart(c *gin.Context) {
	var req inventory.CartReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	held, err := h.services.Inventory.ReserveCart(c.Request.Context(), middleware.TenantID(c), middleware.ActorID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Cart reserved successfully",
		"data":    held,
	})
}

// GetCartReservations handles GET /inventory/carts/:cartId/reservations
func (h *InventoryHandler) GetCartReservations(c *gin.Context) {
	allocations, err := h.services.Allocations.ListByCart(c.Request.Context(), middleware.TenantID(c), c.Param("cartId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart reservations retrieved successfully",
		"data":    allocations,
	})
}

// FulfillCart handles POST /inventory/carts/:cartId/fulfill
func (h *InventoryHandler) FulfillCart(c *gin.Context) {
	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	fulfilled, err := h.services.Inventory.FulfillCart(c.Request.Context(), middleware.TenantID(c), middleware.ActorID(c), c.Param("cartId"), req.ReceiptID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart fulfilled successfully",
		"data":    fulfilled,
	})
}

// ReleaseCart handles POST /inventory/carts/:cartId/release
func (h *InventoryHandler) ReleaseCart(c *gin.Context) {
	released, err := h.services.Allocations.CompensateCart(c.Request.Context(), middleware.TenantID(c), middleware.ActorID(c), c.Param("cartId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart reservations released",
		"ok":      true,
		"data":    released,
	})
}

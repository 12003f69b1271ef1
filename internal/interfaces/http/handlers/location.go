// internal/interfaces/http/handlers/location.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/inventory-ledger/internal/domain/location"
	"github.com/your-org/inventory-ledger/internal/interfaces/http/middleware"
)

// LocationHandler handles the location registry endpoints
type LocationHandler struct {
	locations *location.Service
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(locations *location.Service) *LocationHandler {
	return &LocationHandler{locations: locations}
}

// Create handles POST /inventory/locations
func (h *LocationHandler) Create(c *gin.Context) {
	var req location.CreateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	loc, err := h.locations.Create(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Location created successfully",
		"data":    loc,
	})
}

// List handles GET /inventory/locations
func (h *LocationHandler) List(c *gin.Context) {
	locations, err := h.locations.List(c.Request.Context(), middleware.TenantID(c), location.LocationStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Locations retrieved successfully",
		"data":    locations,
	})
}

// Get handles GET /inventory/locations/:id
func (h *LocationHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	loc, err := h.locations.Get(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Location retrieved successfully",
		"data":    loc,
	})
}

// SetStatus handles PUT /inventory/locations/:id/status
func (h *LocationHandler) SetStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status location.LocationStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	loc, err := h.locations.SetStatus(c.Request.Context(), middleware.TenantID(c), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Location status updated",
		"data":    loc,
	})
}

// internal/interfaces/http/handlers/admin.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/inventory-ledger/internal/domain/inventory"
	"github.com/your-org/inventory-ledger/internal/interfaces/http/middleware"
)

// AdminHandler handles integrity and maintenance endpoints
type AdminHandler struct {
	services *inventory.Services
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(services *inventory.Services) *AdminHandler {
	return &AdminHandler{services: services}
}

// RebuildProjection handles POST /admin/inventory/projections/:catalogItemId/:locationId/rebuild
func (h *AdminHandler) RebuildProjection(c *gin.Context) {
	key, ok := partitionParams(c)
	if !ok {
		return
	}

	projection, err := h.services.Projections.Rebuild(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Projection rebuilt from the ledger",
		"data":    projection,
	})
}

// CheckDrift handles GET /admin/inventory/projections/:catalogItemId/:locationId/drift
func (h *AdminHandler) CheckDrift(c *gin.Context) {
	key, ok := partitionParams(c)
	if !ok {
		return
	}

	report, err := h.services.Projections.CheckDrift(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Projection compared with the ledger",
		"data":    report,
	})
}

// VerifyAll handles POST /admin/inventory/verify
func (h *AdminHandler) VerifyAll(c *gin.Context) {
	results, err := h.services.Verifier.VerifyAll(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	broken := 0
	for _, r := range results {
		if !r.Valid {
			broken++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Partitions verified",
		"broken":  broken,
		"data":    results,
	})
}

// ListAlerts handles GET /admin/inventory/alerts
func (h *AdminHandler) ListAlerts(c *gin.Context) {
	alerts, err := h.services.Ledger.ListAlerts(c.Request.Context(), middleware.TenantID(c), c.Query("include_resolved") == "true")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Integrity alerts retrieved successfully",
		"data":    alerts,
	})
}

// ResolveAlert handles POST /admin/inventory/alerts/:id/resolve
func (h *AdminHandler) ResolveAlert(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	alert, err := h.services.Ledger.ResolveAlert(c.Request.Context(), middleware.TenantID(c), id, middleware.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Integrity alert resolved",
		"data":    alert,
	})
}

// Sweep handles POST /admin/inventory/sweep
func (h *AdminHandler) Sweep(c *gin.Context) {
	result, err := h.services.Sweeper.RunNow(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Expiry sweep completed",
		"data":    result,
	})
}

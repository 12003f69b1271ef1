// internal/interfaces/http/handlers/trace.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/inventory-ledger/internal/interfaces/http/middleware"
)

// Trace handles GET /inventory/trace/:receiptId
func (h *InventoryHandler) Trace(c *gin.Context) {
	trace, err := h.services.Allocations.Trace(c.Request.Context(), middleware.TenantID(c), c.Param("receiptId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Receipt traced successfully",
		"data":    trace,
	})
}

// TraceReport handles GET /inventory/trace/:receiptId/report. It returns a
// PDF, or the underlying HTML with ?format=html.
func (h *InventoryHandler) TraceReport(c *gin.Context) {
	receiptID := c.Param("receiptId")
	trace, err := h.services.Allocations.Trace(c.Request.Context(), middleware.TenantID(c), receiptID)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") == "html" {
		html, err := h.reports.RenderTraceHTML(trace)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
		return
	}

	buf, err := h.reports.GenerateTraceReport(trace)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", attachment("provenance-"+receiptID+".pdf"))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

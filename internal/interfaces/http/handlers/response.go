// internal/interfaces/http/handlers/response.go
package handlers

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
)

// StatusFor maps an error kind to its HTTP status
func StatusFor(err error) int {
	switch errs.Code(err) {
	case "invalid_quantity", "validation_error":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "insufficient_stock", "invalid_allocation_state", "invalid_lot_state":
		return http.StatusConflict
	case "inactive_location":
		return http.StatusUnprocessableEntity
	case "concurrent_append_conflict":
		return http.StatusServiceUnavailable
	case "integrity_violation":
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body. Internal errors are logged by the
// request logger and not echoed to the client.
func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	_ = c.Error(err)
	c.JSON(status, gin.H{
		"error": message,
		"code":  errs.Code(err),
	})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request data",
		"code":    "validation_error",
		"details": err.Error(),
	})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
			"code":  "validation_error",
		})
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
			"code":  "validation_error",
		})
		return nil, false
	}
	return &id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return fallback
	}
	return value
}

// attachment builds a Content-Disposition value for a download. Names that
// are not plain tokens are quoted or RFC 2231 encoded, so a receipt id can
// never inject parameters or header lines.
func attachment(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

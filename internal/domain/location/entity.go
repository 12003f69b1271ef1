// internal/domain/location/entity.go
package location

import (
	"time"

	"github.com/google/uuid"
)

// LocationType represents the kind of stock location
type LocationType string

const (
	LocationTypeWarehouse LocationType = "warehouse"
	LocationTypeStore     LocationType = "store"
	LocationTypeVirtual   LocationType = "virtual"
)

// LocationStatus represents whether a location accepts new stock
type LocationStatus string

const (
	LocationStatusActive   LocationStatus = "active"
	LocationStatusInactive LocationStatus = "inactive"
)

// Location is a physical or logical place that holds stock. Locations are
// never deleted because ledger events reference them permanently.
type Location struct {
	ID        uuid.UUID      `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID  string         `gorm:"not null;size:64;uniqueIndex:idx_locations_tenant_code" json:"tenant_id"`
	Code      string         `gorm:"not null;size:32;uniqueIndex:idx_locations_tenant_code" json:"code"`
	Name      string         `gorm:"not null;size:100" json:"name"`
	Type      LocationType   `gorm:"not null;size:16" json:"type"`
	Status    LocationStatus `gorm:"not null;size:16;default:'active'" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsActive reports whether the location accepts receipts and reservations
func (l *Location) IsActive() bool {
	return l.Status == LocationStatusActive
}

// ValidType reports whether t is a known location type
func ValidType(t LocationType) bool {
	switch t {
	case LocationTypeWarehouse, LocationTypeStore, LocationTypeVirtual:
		return true
	}
	return false
}

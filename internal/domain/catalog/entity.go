// internal/domain/catalog/entity.go
package catalog

import (
	"time"

	"github.com/google/uuid"
)

// CatalogItem is the slice of the catalog service's item that the ledger
// needs for referential checks. Item CRUD belongs to the catalog service;
// rows arrive through its replication or the development seed.
type CatalogItem struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID  string    `gorm:"not null;size:64;index;uniqueIndex:idx_catalog_items_tenant_sku" json:"tenant_id"`
	SKU       string    `gorm:"not null;size:100;uniqueIndex:idx_catalog_items_tenant_sku" json:"sku"`
	Name      string    `gorm:"not null;size:255" json:"name"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

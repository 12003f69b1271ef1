// internal/domain/inventory/entity.go
package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/inventory-ledger/internal/domain/allocation"
	"github.com/your-org/inventory-ledger/internal/domain/catalog"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/domain/location"
	"github.com/your-org/inventory-ledger/internal/domain/lot"
	"github.com/your-org/inventory-ledger/internal/domain/projection"
)

// CartLine is one item of a cart to hold stock for
type CartLine struct {
	CatalogItemID uuid.UUID `json:"catalog_item_id" binding:"required"`
	LocationID    uuid.UUID `json:"location_id" binding:"required"`
	Quantity      int64     `json:"quantity"`
}

// CartReservationRequest holds stock for every line of a cart or none
type CartReservationRequest struct {
	CartID     string     `json:"cart_id" binding:"required,max=128"`
	Lines      []CartLine `json:"lines" binding:"required,min=1,dive"`
	TTLSeconds int64      `json:"ttl_seconds"`
}

// LocationStock is the stock position of an item at one location
type LocationStock struct {
	LocationID  uuid.UUID       `json:"location_id"`
	OnHand      int64           `json:"on_hand"`
	Reserved    int64           `json:"reserved"`
	Available   int64           `json:"available"`
	AvgUnitCost decimal.Decimal `json:"avg_unit_cost"`
}

// StockLevel aggregates an item's projections across locations
type StockLevel struct {
	CatalogItemID uuid.UUID       `json:"catalog_item_id"`
	OnHand        int64           `json:"on_hand"`
	Reserved      int64           `json:"reserved"`
	Available     int64           `json:"available"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Locations     []LocationStock `json:"locations"`
}

// Models lists every table of the inventory ledger in dependency order
func Models() []interface{} {
	models := []interface{}{
		&location.Location{},
		&catalog.CatalogItem{},
		&lot.Lot{},
	}
	models = append(models, ledger.Models()...)
	models = append(models, &projection.Projection{})
	models = append(models, allocation.Models()...)
	return models
}

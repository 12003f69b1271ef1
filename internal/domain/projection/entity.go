// internal/domain/projection/entity.go
package projection

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
)

// Projection is the materialized stock position of one partition. It is a
// cache over the ledger and can always be rebuilt by replay.
type Projection struct {
	ID                uuid.UUID       `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID          string          `gorm:"not null;size:64;uniqueIndex:idx_inventory_projections_partition,priority:1" json:"tenant_id"`
	CatalogItemID     uuid.UUID       `gorm:"type:varchar(36);not null;uniqueIndex:idx_inventory_projections_partition,priority:2" json:"catalog_item_id"`
	LocationID        uuid.UUID       `gorm:"type:varchar(36);not null;uniqueIndex:idx_inventory_projections_partition,priority:3" json:"location_id"`
	QuantityOnHand    int64           `gorm:"not null;default:0" json:"quantity_on_hand"`
	QuantityReserved  int64           `gorm:"not null;default:0" json:"quantity_reserved"`
	QuantityAvailable int64           `gorm:"not null;default:0" json:"quantity_available"`
	TotalCost         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_cost"`
	AvgUnitCost       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"avg_unit_cost"`
	Currency          string          `gorm:"size:3" json:"currency"`
	LastSequence      int64           `gorm:"not null;default:0" json:"last_sequence"`
	LastEventHash     string          `gorm:"size:64" json:"last_event_hash"`
	LastEventAt       *time.Time      `json:"last_event_at,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName pins the projection table name
func (Projection) TableName() string {
	return "inventory_projections"
}

// Partition returns the projection's partition key
func (p *Projection) Partition() ledger.PartitionKey {
	return ledger.NewPartitionKey(p.TenantID, p.CatalogItemID, p.LocationID)
}

// Empty returns the zero position of a partition
func Empty(key ledger.PartitionKey) Projection {
	return Projection{
		TenantID:      key.TenantID,
		CatalogItemID: key.CatalogItemID,
		LocationID:    key.LocationID,
		TotalCost:     decimal.Zero,
		AvgUnitCost:   decimal.Zero,
	}
}

// SameState reports whether two projections describe the same position,
// ignoring row identity and bookkeeping timestamps.
func (p *Projection) SameState(other *Projection) bool {
	return p.QuantityOnHand == other.QuantityOnHand &&
		p.QuantityReserved == other.QuantityReserved &&
		p.QuantityAvailable == other.QuantityAvailable &&
		p.TotalCost.Equal(other.TotalCost) &&
		p.AvgUnitCost.Equal(other.AvgUnitCost) &&
		p.LastSequence == other.LastSequence &&
		p.LastEventHash == other.LastEventHash
}

// internal/domain/allocation/entity.go
package allocation

import (
	"time"

	"github.com/google/uuid"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
)

// AllocationStatus represents the state of a stock hold
type AllocationStatus string

const (
	AllocationStatusReserved  AllocationStatus = "reserved"
	AllocationStatusFulfilled AllocationStatus = "fulfilled"
	AllocationStatusReleased  AllocationStatus = "released"
	AllocationStatusExpired   AllocationStatus = "expired"
)

// Allocation is a hold of a quantity for a cart. It moves from reserved to
// exactly one of fulfilled, released or expired and never leaves that state.
type Allocation struct {
	ID                 uuid.UUID        `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID           string           `gorm:"not null;size:64;index:idx_allocations_cart,priority:1" json:"tenant_id"`
	CatalogItemID      uuid.UUID        `gorm:"type:varchar(36);not null" json:"catalog_item_id"`
	LocationID         uuid.UUID        `gorm:"type:varchar(36);not null" json:"location_id"`
	LotID              uuid.UUID        `gorm:"type:varchar(36);not null;index" json:"lot_id"`
	CartID             string           `gorm:"not null;size:128;index:idx_allocations_cart,priority:2" json:"cart_id"`
	Quantity           int64            `gorm:"not null" json:"quantity"`
	Status             AllocationStatus `gorm:"not null;size:16;index:idx_allocations_status_expiry,priority:1" json:"status"`
	ReservedAt         time.Time        `gorm:"not null" json:"reserved_at"`
	ExpiresAt          time.Time        `gorm:"not null;index:idx_allocations_status_expiry,priority:2" json:"expires_at"`
	EventID            uuid.UUID        `gorm:"type:varchar(36);not null" json:"event_id"`
	ReceiptID          *string          `gorm:"size:128;index" json:"receipt_id,omitempty"`
	FulfilledAt        *time.Time       `json:"fulfilled_at,omitempty"`
	FulfillmentEventID *uuid.UUID       `gorm:"type:varchar(36)" json:"fulfillment_event_id,omitempty"`
	ClosedAt           *time.Time       `json:"closed_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`

	// Relationships
	Lines []AllocationLine `gorm:"foreignKey:AllocationID" json:"lines,omitempty"`
}

// TableName pins the allocation table name
func (Allocation) TableName() string {
	return "inventory_allocations"
}

// AllocationLine is the part of an allocation drawn from one lot
type AllocationLine struct {
	ID             uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	AllocationID   uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"allocation_id"`
	Position       int        `gorm:"not null" json:"position"`
	LotID          uuid.UUID  `gorm:"type:varchar(36);not null" json:"lot_id"`
	Quantity       int64      `gorm:"not null" json:"quantity"`
	ReserveEventID uuid.UUID  `gorm:"type:varchar(36);not null" json:"reserve_event_id"`
	SettleEventID  *uuid.UUID `gorm:"type:varchar(36);index" json:"settle_event_id,omitempty"`
}

// TableName pins the allocation line table name
func (AllocationLine) TableName() string {
	return "inventory_allocation_lines"
}

// Partition returns the ledger partition the allocation draws from
func (a *Allocation) Partition() ledger.PartitionKey {
	return ledger.NewPartitionKey(a.TenantID, a.CatalogItemID, a.LocationID)
}

// IsTerminal reports whether the allocation reached a final state
func (a *Allocation) IsTerminal() bool {
	return a.Status != AllocationStatusReserved
}

// IsExpiredAt reports whether the hold lapsed at the given instant
func (a *Allocation) IsExpiredAt(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Models lists the tables owned by the allocation package
func Models() []interface{} {
	return []interface{}{&Allocation{}, &AllocationLine{}}
}

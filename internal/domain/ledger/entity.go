// internal/domain/ledger/entity.go
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EventType represents the kind of inventory event
type EventType string

const (
	EventTypeReceive EventType = "RECEIVE" // Goods received into a new lot
	EventTypeReserve EventType = "RESERVE" // Hold placed for a cart (negative delta)
	EventTypeRelease EventType = "RELEASE" // Hold released or expired (positive delta)
	EventTypeSell    EventType = "SELL"    // Reserved units consumed by a receipt (negative delta)
	EventTypeAdjust  EventType = "ADJUST"  // Correction, revaluation or write-off
)

// ReferenceType identifies the business document behind an event
type ReferenceType string

const (
	ReferenceTypeGRN        ReferenceType = "grn"
	ReferenceTypeCart       ReferenceType = "cart"
	ReferenceTypeReceipt    ReferenceType = "receipt"
	ReferenceTypeAdjustment ReferenceType = "adjustment"
)

// ErrImmutableEvent is returned by the model hooks when code tries to
// update or delete a committed event.
var ErrImmutableEvent = errors.New("inventory events are append-only")

// PartitionKey owns one independent hash chain and sequence
type PartitionKey struct {
	TenantID      string    `json:"tenant_id"`
	CatalogItemID uuid.UUID `json:"catalog_item_id"`
	LocationID    uuid.UUID `json:"location_id"`
}

// NewPartitionKey builds a partition key
func NewPartitionKey(tenantID string, catalogItemID, locationID uuid.UUID) PartitionKey {
	return PartitionKey{TenantID: tenantID, CatalogItemID: catalogItemID, LocationID: locationID}
}

// String renders the key as tenant/item/location
func (k PartitionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TenantID, k.CatalogItemID, k.LocationID)
}

// InventoryEvent is one immutable link in a partition's hash chain
type InventoryEvent struct {
	ID             uuid.UUID       `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID       string          `gorm:"not null;size:64;uniqueIndex:idx_inventory_events_partition_seq,priority:1" json:"tenant_id"`
	EventType      EventType       `gorm:"not null;size:16" json:"event_type"`
	CatalogItemID  uuid.UUID       `gorm:"type:varchar(36);not null;uniqueIndex:idx_inventory_events_partition_seq,priority:2" json:"catalog_item_id"`
	LotID          uuid.UUID       `gorm:"type:varchar(36);not null;index" json:"lot_id"`
	LocationID     uuid.UUID       `gorm:"type:varchar(36);not null;uniqueIndex:idx_inventory_events_partition_seq,priority:3" json:"location_id"`
	Quantity       int64           `gorm:"not null" json:"quantity"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	Currency       string          `gorm:"not null;size:3" json:"currency"`
	ValueDelta     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value_delta"`
	ReferenceType  ReferenceType   `gorm:"not null;size:16;index:idx_inventory_events_reference,priority:1" json:"reference_type"`
	ReferenceID    string          `gorm:"not null;size:128;index:idx_inventory_events_reference,priority:2" json:"reference_id"`
	CounterpartyID *string         `gorm:"size:128" json:"counterparty_id,omitempty"`
	EventHash      string          `gorm:"not null;size:64;index" json:"event_hash"`
	PrevEventHash  *string         `gorm:"size:64" json:"prev_event_hash,omitempty"`
	SequenceNumber int64           `gorm:"not null;uniqueIndex:idx_inventory_events_partition_seq,priority:4" json:"sequence_number"`
	ActorID        string          `gorm:"not null;size:128" json:"actor_id"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

// TableName pins the append-only table name
func (InventoryEvent) TableName() string {
	return "inventory_events"
}

// Partition returns the event's partition key
func (e *InventoryEvent) Partition() PartitionKey {
	return NewPartitionKey(e.TenantID, e.CatalogItemID, e.LocationID)
}

// AbsQuantity returns the magnitude of the quantity delta
func (e *InventoryEvent) AbsQuantity() int64 {
	if e.Quantity < 0 {
		return -e.Quantity
	}
	return e.Quantity
}

// BeforeUpdate hook rejects in-place edits of committed events
func (e *InventoryEvent) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableEvent
}

// BeforeDelete hook rejects deletion of committed events
func (e *InventoryEvent) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableEvent
}

// ValidEventType reports whether t is a known event type
func ValidEventType(t EventType) bool {
	switch t {
	case EventTypeReceive, EventTypeReserve, EventTypeRelease, EventTypeSell, EventTypeAdjust:
		return true
	}
	return false
}

// ValidReferenceType reports whether t is a known reference type
func ValidReferenceType(t ReferenceType) bool {
	switch t {
	case ReferenceTypeGRN, ReferenceTypeCart, ReferenceTypeReceipt, ReferenceTypeAdjustment:
		return true
	}
	return false
}

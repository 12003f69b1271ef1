// internal/domain/lot/entity.go
package lot

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
)

// LotStatus represents the lifecycle of a lot
type LotStatus string

const (
	LotStatusActive   LotStatus = "active"
	LotStatusDepleted LotStatus = "depleted"
	LotStatusClosed   LotStatus = "closed"
)

// Lot is a batch of one catalog item received at one location in a single
// receipt. Its counters are maintained from the lot's ledger events.
type Lot struct {
	ID                 uuid.UUID       `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID           string          `gorm:"not null;size:64;uniqueIndex:idx_lots_tenant_number,priority:1;index:idx_lots_fifo,priority:1" json:"tenant_id"`
	CatalogItemID      uuid.UUID       `gorm:"type:varchar(36);not null;index:idx_lots_fifo,priority:2" json:"catalog_item_id"`
	LocationID         uuid.UUID       `gorm:"type:varchar(36);not null;index:idx_lots_fifo,priority:3" json:"location_id"`
	LotNumber          string          `gorm:"not null;size:64;uniqueIndex:idx_lots_tenant_number,priority:2" json:"lot_number"`
	Barcode            *string         `gorm:"size:64" json:"barcode,omitempty"`
	QuantityInitial    int64           `gorm:"not null" json:"quantity_initial"`
	QuantityOnHand     int64           `gorm:"not null;default:0" json:"quantity_on_hand"`
	QuantityReserved   int64           `gorm:"not null;default:0" json:"quantity_reserved"`
	UnitCost           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	Currency           string          `gorm:"not null;size:3" json:"currency"`
	ReceivedAt         time.Time       `gorm:"not null;index:idx_lots_fifo,priority:5" json:"received_at"`
	SupplierID         *string         `gorm:"size:128" json:"supplier_id,omitempty"`
	SupplierInvoiceRef *string         `gorm:"size:128" json:"supplier_invoice_ref,omitempty"`
	Status             LotStatus       `gorm:"not null;size:16;default:'active';index:idx_lots_fifo,priority:4" json:"status"`
	ReceiveEventID     *uuid.UUID      `gorm:"type:varchar(36)" json:"receive_event_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName pins the lot table name
func (Lot) TableName() string {
	return "lots"
}

// Partition returns the ledger partition the lot belongs to
func (l *Lot) Partition() ledger.PartitionKey {
	return ledger.NewPartitionKey(l.TenantID, l.CatalogItemID, l.LocationID)
}

// Available returns the units that can still be reserved or written off
func (l *Lot) Available() int64 {
	return l.QuantityOnHand - l.QuantityReserved
}

// IsClosed checks if the lot has been closed
func (l *Lot) IsClosed() bool {
	return l.Status == LotStatusClosed
}

// ApplyEvent moves the lot counters by one ledger event and rejects any
// result outside 0 <= reserved <= on hand <= initial.
func (l *Lot) ApplyEvent(e *ledger.InventoryEvent) error {
	qty := e.AbsQuantity()

	switch e.EventType {
	case ledger.EventTypeReceive:
		l.QuantityOnHand += e.Quantity
		id := e.ID
		l.ReceiveEventID = &id
	case ledger.EventTypeReserve:
		l.QuantityReserved += qty
	case ledger.EventTypeRelease:
		l.QuantityReserved -= qty
	case ledger.EventTypeSell:
		l.QuantityOnHand -= qty
		l.QuantityReserved -= qty
	case ledger.EventTypeAdjust:
		l.QuantityOnHand += e.Quantity
		l.UnitCost = e.UnitCost
	}

	switch {
	case l.QuantityReserved < 0 || l.QuantityOnHand < 0:
		return fmt.Errorf("%w: lot %s counters would go negative", errs.ErrInvalidLotState, l.LotNumber)
	case l.QuantityReserved > l.QuantityOnHand:
		return fmt.Errorf("%w: lot %s has %d on hand, %d reserved", errs.ErrInsufficientStock, l.LotNumber, l.QuantityOnHand, l.QuantityReserved)
	case l.QuantityOnHand > l.QuantityInitial:
		return fmt.Errorf("%w: lot %s on hand %d exceeds initial %d", errs.ErrInvalidQuantity, l.LotNumber, l.QuantityOnHand, l.QuantityInitial)
	}

	if l.Status != LotStatusClosed {
		if l.QuantityOnHand == 0 {
			l.Status = LotStatusDepleted
		} else {
			l.Status = LotStatusActive
		}
	}
	return nil
}

// GenerateLotNumber builds LOT-YYYYMMDD-xxxxxxxx from the receipt date
func GenerateLotNumber(receivedAt time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("LOT-%s-%s", receivedAt.UTC().Format("20060102"), suffix)
}

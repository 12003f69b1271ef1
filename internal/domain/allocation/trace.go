// internal/domain/allocation/trace.go
package allocation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/domain/lot"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"gorm.io/gorm"
)

// TraceEntry is one ledger event on the path from receipt back to goods-in
type TraceEntry struct {
	EventID        uuid.UUID            `json:"event_id"`
	EventType      ledger.EventType     `json:"event_type"`
	SequenceNumber int64                `json:"sequence_number"`
	LotID          uuid.UUID            `json:"lot_id"`
	Quantity       int64                `json:"quantity"`
	UnitCost       decimal.Decimal      `json:"unit_cost"`
	ReferenceType  ledger.ReferenceType `json:"reference_type"`
	ReferenceID    string               `json:"reference_id"`
	ActorID        string               `json:"actor_id"`
	EventHash      string               `json:"event_hash"`
	PrevEventHash  *string              `json:"prev_event_hash,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// LotProvenance describes where a sold lot came from
type LotProvenance struct {
	LotID              uuid.UUID       `json:"lot_id"`
	LotNumber          string          `json:"lot_number"`
	Barcode            *string         `json:"barcode,omitempty"`
	SupplierID         *string         `json:"supplier_id,omitempty"`
	SupplierInvoiceRef *string         `json:"supplier_invoice_ref,omitempty"`
	GRNID              string          `json:"grn_id"`
	ReceivedAt         time.Time       `json:"received_at"`
	UnitCost           decimal.Decimal `json:"unit_cost"`
	Currency           string          `json:"currency"`
}

// TraceLine is the chain of custody for one lot line of a receipt
type TraceLine struct {
	Partition ledger.PartitionKey `json:"partition"`
	Quantity  int64               `json:"quantity"`
	Lot       LotProvenance       `json:"lot"`
	Entries   []TraceEntry        `json:"entries"`
}

// TraceResult is the full provenance of a receipt
type TraceResult struct {
	ReceiptID string      `json:"receipt_id"`
	Lines     []TraceLine `json:"lines"`
}

// Trace follows every SELL of a receipt back through its partition's hash
// chain to the lot's RESERVE and RECEIVE. Only links present in the chain
// are followed; a missing or tampered link is an integrity violation.
func (s *Service) Trace(ctx context.Context, tenantID, receiptID string) (*TraceResult, error) {
	sells, err := s.ledger.EventsByReference(ctx, tenantID, ledger.ReferenceTypeReceipt, receiptID, ledger.EventTypeSell)
	if err != nil {
		return nil, err
	}
	if len(sells) == 0 {
		return nil, fmt.Errorf("%w: no sales recorded for receipt %s", errs.ErrNotFound, receiptID)
	}

	// One chain load per partition, up to the latest SELL of the receipt.
	upTo := make(map[ledger.PartitionKey]int64)
	for _, sell := range sells {
		key := sell.Partition()
		if sell.SequenceNumber > upTo[key] {
			upTo[key] = sell.SequenceNumber
		}
	}
	byHash := make(map[ledger.PartitionKey]map[string]*ledger.InventoryEvent, len(upTo))
	for key, maxSeq := range upTo {
		chain, err := s.ledger.ChainUpTo(ctx, key, maxSeq)
		if err != nil {
			return nil, err
		}
		index := make(map[string]*ledger.InventoryEvent, len(chain))
		for i := range chain {
			index[chain[i].EventHash] = &chain[i]
		}
		byHash[key] = index
	}

	result := &TraceResult{ReceiptID: receiptID}
	for i := range sells {
		sell := &sells[i]
		line, err := s.traceSell(ctx, tenantID, sell, byHash[sell.Partition()])
		if err != nil {
			return nil, err
		}
		result.Lines = append(result.Lines, *line)
	}

	return result, nil
}

func (s *Service) traceSell(ctx context.Context, tenantID string, sell *ledger.InventoryEvent, chain map[string]*ledger.InventoryEvent) (*TraceLine, error) {
	l, err := lot.Find(s.db.WithContext(ctx), tenantID, sell.LotID)
	if err != nil {
		return nil, err
	}

	// The allocation line settled by this SELL names the exact RESERVE.
	var reserveID *uuid.UUID
	var settled AllocationLine
	err = s.db.WithContext(ctx).Where("settle_event_id = ?", sell.ID).First(&settled).Error
	if err == nil {
		reserveID = &settled.ReserveEventID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load allocation line: %w", err)
	}

	if err := checkEvent(sell); err != nil {
		return nil, err
	}
	entries := []TraceEntry{toEntry(sell)}

	var reserve, receive *ledger.InventoryEvent
	current := sell
	for current.PrevEventHash != nil && receive == nil {
		prev, ok := chain[*current.PrevEventHash]
		if !ok {
			return nil, fmt.Errorf("%w: event %s links to an unknown predecessor", errs.ErrIntegrityViolation, current.ID)
		}
		if prev.SequenceNumber != current.SequenceNumber-1 {
			return nil, fmt.Errorf("%w: event %s does not link to its predecessor", errs.ErrIntegrityViolation, current.ID)
		}
		if err := checkEvent(prev); err != nil {
			return nil, err
		}

		if prev.LotID == sell.LotID {
			switch {
			case prev.EventType == ledger.EventTypeReserve && reserve == nil &&
				(reserveID == nil || prev.ID == *reserveID):
				reserve = prev
				entries = append(entries, toEntry(prev))
			case prev.EventType == ledger.EventTypeReceive:
				receive = prev
				entries = append(entries, toEntry(prev))
			}
		}
		current = prev
	}

	if receive == nil {
		return nil, fmt.Errorf("%w: lot %s has no receipt in its chain", errs.ErrIntegrityViolation, l.LotNumber)
	}
	if reserve == nil {
		return nil, fmt.Errorf("%w: sale %s has no reservation in its chain", errs.ErrIntegrityViolation, sell.ID)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SequenceNumber < entries[j].SequenceNumber
	})

	return &TraceLine{
		Partition: sell.Partition(),
		Quantity:  sell.AbsQuantity(),
		Lot: LotProvenance{
			LotID:              l.ID,
			LotNumber:          l.LotNumber,
			Barcode:            l.Barcode,
			SupplierID:         l.SupplierID,
			SupplierInvoiceRef: l.SupplierInvoiceRef,
			GRNID:              receive.ReferenceID,
			ReceivedAt:         l.ReceivedAt,
			UnitCost:           receive.UnitCost,
			Currency:           receive.Currency,
		},
		Entries: entries,
	}, nil
}

func checkEvent(e *ledger.InventoryEvent) error {
	if ledger.ComputeHash(e) != e.EventHash {
		return fmt.Errorf("%w: event %s does not match its hash", errs.ErrIntegrityViolation, e.ID)
	}
	return nil
}

func toEntry(e *ledger.InventoryEvent) TraceEntry {
	return TraceEntry{
		EventID:        e.ID,
		EventType:      e.EventType,
		SequenceNumber: e.SequenceNumber,
		LotID:          e.LotID,
		Quantity:       e.Quantity,
		UnitCost:       e.UnitCost,
		ReferenceType:  e.ReferenceType,
		ReferenceID:    e.ReferenceID,
		ActorID:        e.ActorID,
		EventHash:      e.EventHash,
		PrevEventHash:  e.PrevEventHash,
		CreatedAt:      e.CreatedAt,
	}
}

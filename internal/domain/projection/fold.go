// internal/domain/projection/fold.go
package projection

import (
	"github.com/shopspring/decimal"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
)

const costScale = 4

// Fold returns the position after applying one event to prev. It is pure:
// the incremental path and replay both go through it.
func Fold(prev Projection, e *ledger.InventoryEvent) Projection {
	next := prev
	qty := e.AbsQuantity()

	switch e.EventType {
	case ledger.EventTypeReceive:
		next.QuantityOnHand += e.Quantity
		next.TotalCost = next.TotalCost.Add(e.UnitCost.Mul(decimal.NewFromInt(e.Quantity)))
	case ledger.EventTypeReserve:
		next.QuantityReserved += qty
	case ledger.EventTypeRelease:
		next.QuantityReserved -= qty
	case ledger.EventTypeSell:
		next.QuantityOnHand -= qty
		next.QuantityReserved -= qty
		next.TotalCost = next.TotalCost.Sub(e.UnitCost.Mul(decimal.NewFromInt(qty)))
	case ledger.EventTypeAdjust:
		next.QuantityOnHand += e.Quantity
		next.TotalCost = next.TotalCost.Add(e.ValueDelta)
	}

	next.TotalCost = next.TotalCost.Round(costScale)
	next.QuantityAvailable = next.QuantityOnHand - next.QuantityReserved
	if next.QuantityOnHand > 0 {
		next.AvgUnitCost = next.TotalCost.Div(decimal.NewFromInt(next.QuantityOnHand)).Round(costScale)
	} else {
		next.AvgUnitCost = decimal.Zero
	}

	if next.Currency == "" {
		next.Currency = e.Currency
	}
	next.LastSequence = e.SequenceNumber
	next.LastEventHash = e.EventHash
	at := e.CreatedAt
	next.LastEventAt = &at

	return next
}

// Replay folds a partition's events in order starting from the empty position
func Replay(key ledger.PartitionKey, events []ledger.InventoryEvent) Projection {
	p := Empty(key)
	for i := range events {
		p = Fold(p, &events[i])
	}
	return p
}

package lot

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
)

func TestApplyEvent_TracksCountersAndStatus(t *testing.T) {
	lot := &Lot{QuantityInitial: 10, Status: LotStatusActive, UnitCost: decimal.NewFromInt(2)}

	receive := &ledger.InventoryEvent{ID: uuid.New(), EventType: ledger.EventTypeReceive, Quantity: 10}
	require.NoError(t, lot.ApplyEvent(receive))
	assert.Equal(t, int64(10), lot.QuantityOnHand)
	assert.Equal(t, receive.ID, *lot.ReceiveEventID)

	require.NoError(t, lot.ApplyEvent(&ledger.InventoryEvent{EventType: ledger.EventTypeReserve, Quantity: -10}))
	assert.Equal(t, int64(0), lot.Available())

	require.NoError(t, lot.ApplyEvent(&ledger.InventoryEvent{EventType: ledger.EventTypeSell, Quantity: -10}))
	assert.Equal(t, int64(0), lot.QuantityOnHand)
	assert.Equal(t, LotStatusDepleted, lot.Status)

	require.NoError(t, lot.ApplyEvent(&ledger.InventoryEvent{EventType: ledger.EventTypeAdjust, Quantity: 1, UnitCost: decimal.NewFromInt(2)}))
	assert.Equal(t, LotStatusActive, lot.Status)
}

func TestApplyEvent_EnforcesInvariant(t *testing.T) {
	base := func() *Lot {
		return &Lot{QuantityInitial: 5, QuantityOnHand: 5, QuantityReserved: 2, Status: LotStatusActive}
	}

	err := base().ApplyEvent(&ledger.InventoryEvent{EventType: ledger.EventTypeReserve, Quantity: -4})
	assert.ErrorIs(t, err, errs.ErrInsufficientStock)

	err = base().ApplyEvent(&ledger.InventoryEvent{EventType: ledger.EventTypeRelease, Quantity: 3})
	assert.ErrorIs(t, err, errs.ErrInvalidLotState)

	err = base().ApplyEvent(&ledger.InventoryEvent{EventType: ledger.EventTypeAdjust, Quantity: 1})
	assert.ErrorIs(t, err, errs.ErrInvalidQuantity)

	err = base().ApplyEvent(&ledger.InventoryEvent{EventType: ledger.EventTypeAdjust, Quantity: -4})
	assert.ErrorIs(t, err, errs.ErrInsufficientStock)
}

func TestApplyEvent_ClosedLotStaysClosed(t *testing.T) {
	lot := &Lot{QuantityInitial: 5, QuantityOnHand: 5, Status: LotStatusClosed}

	require.NoError(t, lot.ApplyEvent(&ledger.InventoryEvent{EventType: ledger.EventTypeAdjust, Quantity: -5}))

	assert.Equal(t, LotStatusClosed, lot.Status)
}

func TestGenerateLotNumber(t *testing.T) {
	number := GenerateLotNumber(time.Date(2026, 2, 3, 23, 0, 0, 0, time.FixedZone("X", -3*3600)))

	assert.Regexp(t, regexp.MustCompile(`^LOT-20260204-[0-9A-F]{8}$`), number)
}

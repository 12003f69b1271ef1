package allocation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
)

func sellOne(t *testing.T, f *fixture, receiptID string) *Allocation {
	t.Helper()
	a, err := f.reserve("cart-"+receiptID, 2, 0)
	require.NoError(t, err)
	fulfilled, _, err := f.allocations.Fulfill(context.Background(), tenant, "cashier-1", a.ID, receiptID)
	require.NoError(t, err)
	return fulfilled
}

func TestTrace_UnknownReceipt(t *testing.T) {
	f := newFixture(t)

	_, err := f.allocations.Trace(context.Background(), tenant, "R-missing")

	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTrace_SkipsUnrelatedEvents(t *testing.T) {
	f := newFixture(t)
	received := f.receive(t, f.itemID, 20, "3")

	// Interleave other carts between the reservation and the sale.
	a, err := f.reserve("cart-1", 2, 0)
	require.NoError(t, err)
	_, err = f.reserve("cart-2", 5, 0)
	require.NoError(t, err)
	_, _, err = f.allocations.Fulfill(context.Background(), tenant, "cashier-1", a.ID, "R-1")
	require.NoError(t, err)

	trace, err := f.allocations.Trace(context.Background(), tenant, "R-1")
	require.NoError(t, err)

	require.Len(t, trace.Lines, 1)
	entries := trace.Lines[0].Entries
	require.Len(t, entries, 3)
	assert.Equal(t, received.Event.ID, entries[0].EventID)
	assert.Equal(t, a.Lines[0].ReserveEventID, entries[1].EventID)
	assert.Equal(t, int64(2), entries[1].SequenceNumber)
	assert.Equal(t, int64(4), entries[2].SequenceNumber)
	for _, e := range entries {
		assert.Equal(t, received.Lot.ID, e.LotID)
	}
	assert.Equal(t, received.Lot.ID, trace.Lines[0].Lot.LotID)
}

func TestTrace_DetectsTamperedEvent(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.itemID, 10, "5")
	sold := sellOne(t, f, "R-7")

	err := f.db.Exec("UPDATE inventory_events SET actor_id = ? WHERE id = ?", "someone-else", sold.Lines[0].ReserveEventID).Error
	require.NoError(t, err)

	_, err = f.allocations.Trace(context.Background(), tenant, "R-7")
	assert.ErrorIs(t, err, errs.ErrIntegrityViolation)
}

func TestTrace_DetectsMissingReceive(t *testing.T) {
	f := newFixture(t)
	received := f.receive(t, f.itemID, 10, "5")
	sellOne(t, f, "R-8")

	err := f.db.Exec("DELETE FROM inventory_events WHERE id = ?", received.Event.ID).Error
	require.NoError(t, err)

	_, err = f.allocations.Trace(context.Background(), tenant, "R-8")
	assert.ErrorIs(t, err, errs.ErrIntegrityViolation)
}

func TestTrace_ReportsCostAtReceipt(t *testing.T) {
	f := newFixture(t)
	received := f.receive(t, f.itemID, 10, "5")
	sellOne(t, f, "R-9")

	trace, err := f.allocations.Trace(context.Background(), tenant, "R-9")
	require.NoError(t, err)

	line := trace.Lines[0]
	assert.Equal(t, ledger.NewPartitionKey(tenant, f.itemID, f.locationID), line.Partition)
	assert.Equal(t, "5.0000", line.Lot.UnitCost.StringFixed(4))
	assert.Equal(t, received.Lot.Currency, line.Lot.Currency)
	assert.Equal(t, "R-9", trace.ReceiptID)
}

package lot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/inventory-ledger/internal/domain/catalog"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/domain/location"
	"github.com/your-org/inventory-ledger/internal/domain/projection"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"github.com/your-org/inventory-ledger/internal/pkg/logger"
	"github.com/your-org/inventory-ledger/internal/pkg/testdb"
	"gorm.io/gorm"
)

const tenant = "tenant-a"

type fixture struct {
	db         *gorm.DB
	ledger     *ledger.Service
	projection *projection.Service
	lots       *Service
	itemID     uuid.UUID
	locationID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	models := append(ledger.Models(), &projection.Projection{}, &Lot{}, &location.Location{}, &catalog.CatalogItem{})
	db := testdb.Open(t, models...)
	cfg := testdb.Config()
	log := logger.Discard()

	ledgerSvc := ledger.NewService(db, cfg, log)
	projections := projection.NewService(db, nil, ledgerSvc, cfg, log)
	lots := NewService(db, ledgerSvc, cfg, log)
	ledgerSvc.RegisterApplier(projections)
	ledgerSvc.RegisterApplier(lots)
	ledgerSvc.RegisterCommitHook(projections)

	f := &fixture{
		db:         db,
		ledger:     ledgerSvc,
		projection: projections,
		lots:       lots,
		itemID:     uuid.New(),
		locationID: uuid.New(),
	}

	require.NoError(t, db.Create(&location.Location{
		ID: f.locationID, TenantID: tenant, Code: "WH-1", Name: "Main warehouse",
		Type: location.LocationTypeWarehouse, Status: location.LocationStatusActive,
	}).Error)
	require.NoError(t, db.Create(&catalog.CatalogItem{
		ID: f.itemID, TenantID: tenant, SKU: "SKU-1", Name: "Widget", IsActive: true,
	}).Error)

	return f
}

func (f *fixture) key() ledger.PartitionKey {
	return ledger.NewPartitionKey(tenant, f.itemID, f.locationID)
}

func (f *fixture) receive(t *testing.T, qty int64, unitCost string) *ReceiveResult {
	t.Helper()
	supplier := "supplier-1"
	invoice := "INV-1001"
	result, err := f.lots.Receive(context.Background(), tenant, "user-1", &ReceiveRequest{
		CatalogItemID:      f.itemID,
		LocationID:         f.locationID,
		Quantity:           qty,
		UnitCost:           decimal.RequireFromString(unitCost),
		SupplierID:         &supplier,
		SupplierInvoiceRef: &invoice,
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) lotEvents(t *testing.T, lotID uuid.UUID) []ledger.InventoryEvent {
	t.Helper()
	var events []ledger.InventoryEvent
	require.NoError(t, f.db.Where("lot_id = ?", lotID).Order("sequence_number").Find(&events).Error)
	return events
}

func TestReceive_CreatesLotAndEvent(t *testing.T) {
	f := newFixture(t)

	result := f.receive(t, 100, "15")

	lot := result.Lot
	assert.Equal(t, int64(100), lot.QuantityInitial)
	assert.Equal(t, int64(100), lot.QuantityOnHand)
	assert.Equal(t, int64(0), lot.QuantityReserved)
	assert.Equal(t, LotStatusActive, lot.Status)
	assert.Equal(t, "USD", lot.Currency)
	assert.True(t, strings.HasPrefix(lot.LotNumber, "LOT-"))
	require.NotNil(t, lot.ReceiveEventID)
	assert.Equal(t, result.Event.ID, *lot.ReceiveEventID)

	event := result.Event
	assert.Equal(t, ledger.EventTypeReceive, event.EventType)
	assert.Equal(t, int64(100), event.Quantity)
	assert.Equal(t, ledger.ReferenceTypeGRN, event.ReferenceType)
	assert.Equal(t, "INV-1001", event.ReferenceID)
	require.NotNil(t, event.CounterpartyID)
	assert.Equal(t, "supplier-1", *event.CounterpartyID)
	assert.Equal(t, "1500.0000", event.ValueDelta.StringFixed(4))

	p, err := f.projection.Get(context.Background(), f.key())
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.QuantityAvailable)
	assert.Equal(t, "15.0000", p.AvgUnitCost.StringFixed(4))
}

func TestReceive_RejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t)

	for _, qty := range []int64{0, -5} {
		_, err := f.lots.Receive(context.Background(), tenant, "user-1", &ReceiveRequest{
			CatalogItemID: f.itemID,
			LocationID:    f.locationID,
			Quantity:      qty,
			UnitCost:      decimal.NewFromInt(1),
		})
		assert.ErrorIs(t, err, errs.ErrInvalidQuantity)
	}

	var count int64
	require.NoError(t, f.db.Model(&ledger.InventoryEvent{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.db.Model(&Lot{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReceive_RejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.lots.Receive(context.Background(), tenant, "user-1", &ReceiveRequest{
		CatalogItemID: f.itemID, LocationID: f.locationID, Quantity: 1,
		UnitCost: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.lots.Receive(context.Background(), tenant, "user-1", &ReceiveRequest{
		CatalogItemID: f.itemID, LocationID: f.locationID, Quantity: 1,
		UnitCost: decimal.NewFromInt(1), Currency: "EURO",
	})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.lots.Receive(context.Background(), tenant, "user-1", &ReceiveRequest{
		CatalogItemID: uuid.New(), LocationID: f.locationID, Quantity: 1,
		UnitCost: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.lots.Receive(context.Background(), tenant, "user-1", &ReceiveRequest{
		CatalogItemID: f.itemID, LocationID: uuid.New(), Quantity: 1,
		UnitCost: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestReceive_RejectsInactiveLocation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&location.Location{}).Where("id = ?", f.locationID).
		Update("status", location.LocationStatusInactive).Error)

	_, err := f.lots.Receive(context.Background(), tenant, "user-1", &ReceiveRequest{
		CatalogItemID: f.itemID, LocationID: f.locationID, Quantity: 1,
		UnitCost: decimal.NewFromInt(1),
	})

	assert.ErrorIs(t, err, errs.ErrInactiveLocation)
}

func TestReceive_KeepsOneCurrencyPerPartition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 10, "10")

	_, err := f.lots.Receive(ctx, tenant, "user-1", &ReceiveRequest{
		CatalogItemID: f.itemID,
		LocationID:    f.locationID,
		Quantity:      10,
		UnitCost:      decimal.NewFromInt(1000),
		Currency:      "JPY",
	})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.lots.Receive(ctx, tenant, "user-1", &ReceiveRequest{
		CatalogItemID: f.itemID,
		LocationID:    f.locationID,
		Quantity:      5,
		UnitCost:      decimal.NewFromInt(12),
		Currency:      "usd",
	})
	require.NoError(t, err)

	position, err := f.projection.Get(ctx, f.key())
	require.NoError(t, err)
	assert.Equal(t, "USD", position.Currency)
	assert.Equal(t, int64(15), position.QuantityOnHand)
	assert.Equal(t, "160.0000", position.TotalCost.StringFixed(4))
}

func TestReceive_RejectsDuplicateLotNumber(t *testing.T) {
	f := newFixture(t)
	req := func() *ReceiveRequest {
		return &ReceiveRequest{
			CatalogItemID: f.itemID, LocationID: f.locationID, Quantity: 1,
			UnitCost: decimal.NewFromInt(1), LotNumber: "LOT-FIXED-1",
		}
	}

	_, err := f.lots.Receive(context.Background(), tenant, "user-1", req())
	require.NoError(t, err)

	_, err = f.lots.Receive(context.Background(), tenant, "user-1", req())
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestReceive_UsesSuppliedReceiptDate(t *testing.T) {
	f := newFixture(t)
	receivedAt := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)

	result, err := f.lots.Receive(context.Background(), tenant, "user-1", &ReceiveRequest{
		CatalogItemID: f.itemID, LocationID: f.locationID, Quantity: 3,
		UnitCost: decimal.NewFromInt(2), ReceivedAt: &receivedAt,
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Lot.LotNumber, "LOT-20260115-"))
	assert.True(t, receivedAt.Equal(result.Lot.ReceivedAt))
}

func TestAdjustCost_RevaluesRemainingStock(t *testing.T) {
	f := newFixture(t)
	received := f.receive(t, 10, "10")

	event, err := f.lots.AdjustCost(context.Background(), tenant, "user-1", received.Lot.ID,
		decimal.RequireFromString("12.5"), &AdjustRequest{Reason: "supplier credit note"})

	require.NoError(t, err)
	assert.Equal(t, ledger.EventTypeAdjust, event.EventType)
	assert.Equal(t, int64(0), event.Quantity)
	assert.Equal(t, "25.0000", event.ValueDelta.StringFixed(4))

	lot, err := f.lots.Get(context.Background(), tenant, received.Lot.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.5000", lot.UnitCost.StringFixed(4))
	assert.Equal(t, int64(10), lot.QuantityOnHand)

	p, err := f.projection.Get(context.Background(), f.key())
	require.NoError(t, err)
	assert.Equal(t, "125.0000", p.TotalCost.StringFixed(4))
	assert.Equal(t, "12.5000", p.AvgUnitCost.StringFixed(4))
}

func TestAdjustCost_RejectsUnchangedCost(t *testing.T) {
	f := newFixture(t)
	received := f.receive(t, 10, "10")

	_, err := f.lots.AdjustCost(context.Background(), tenant, "user-1", received.Lot.ID,
		decimal.NewFromInt(10), &AdjustRequest{Reason: "noop"})

	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestAdjustQuantity_Bounds(t *testing.T) {
	f := newFixture(t)
	received := f.receive(t, 10, "4")
	lotID := received.Lot.ID

	// Hold 4 units so only 6 are unreserved.
	require.NoError(t, f.ledger.WithPartition(context.Background(), "test", f.key(), func(tx *gorm.DB) error {
		_, err := f.ledger.Append(tx, ledger.AppendInput{
			Partition: f.key(), EventType: ledger.EventTypeReserve, LotID: lotID, Quantity: -4,
			UnitCost: decimal.NewFromInt(4), Currency: "USD",
			ReferenceType: ledger.ReferenceTypeCart, ReferenceID: "cart-1", ActorID: "user-1",
		})
		return err
	}))

	_, err := f.lots.AdjustQuantity(context.Background(), tenant, "user-1", lotID, -7, &AdjustRequest{Reason: "damaged"})
	assert.ErrorIs(t, err, errs.ErrInsufficientStock)

	_, err = f.lots.AdjustQuantity(context.Background(), tenant, "user-1", lotID, 1, &AdjustRequest{Reason: "found"})
	assert.ErrorIs(t, err, errs.ErrInvalidQuantity)

	_, err = f.lots.AdjustQuantity(context.Background(), tenant, "user-1", lotID, 0, &AdjustRequest{Reason: "none"})
	assert.ErrorIs(t, err, errs.ErrInvalidQuantity)

	event, err := f.lots.AdjustQuantity(context.Background(), tenant, "user-1", lotID, -6, &AdjustRequest{Reason: "damaged", ReferenceID: "ADJ-77"})
	require.NoError(t, err)
	assert.Equal(t, "-24.0000", event.ValueDelta.StringFixed(4))
	assert.Equal(t, "ADJ-77", event.ReferenceID)

	event, err = f.lots.AdjustQuantity(context.Background(), tenant, "user-1", lotID, 2, &AdjustRequest{Reason: "recount"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), event.Quantity)

	lot, err := f.lots.Get(context.Background(), tenant, lotID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), lot.QuantityOnHand)
	assert.Equal(t, int64(4), lot.QuantityReserved)
	assert.Equal(t, int64(10), lot.QuantityInitial)
}

func TestClose_WritesOffRemainingStock(t *testing.T) {
	f := newFixture(t)
	received := f.receive(t, 8, "5")

	closed, err := f.lots.Close(context.Background(), tenant, "user-1", received.Lot.ID, &AdjustRequest{Reason: "expired"})

	require.NoError(t, err)
	assert.Equal(t, LotStatusClosed, closed.Status)
	assert.Equal(t, int64(0), closed.QuantityOnHand)
	assert.Equal(t, int64(8), closed.QuantityInitial)

	events := f.lotEvents(t, received.Lot.ID)
	require.Len(t, events, 2)
	assert.Equal(t, ledger.EventTypeAdjust, events[1].EventType)
	assert.Equal(t, int64(-8), events[1].Quantity)

	_, err = f.lots.Close(context.Background(), tenant, "user-1", received.Lot.ID, &AdjustRequest{Reason: "again"})
	assert.ErrorIs(t, err, errs.ErrInvalidLotState)

	_, err = f.lots.AdjustQuantity(context.Background(), tenant, "user-1", received.Lot.ID, 1, &AdjustRequest{Reason: "late"})
	assert.ErrorIs(t, err, errs.ErrInvalidLotState)
}

func TestClose_RejectsReservedLot(t *testing.T) {
	f := newFixture(t)
	received := f.receive(t, 8, "5")
	require.NoError(t, f.ledger.WithPartition(context.Background(), "test", f.key(), func(tx *gorm.DB) error {
		_, err := f.ledger.Append(tx, ledger.AppendInput{
			Partition: f.key(), EventType: ledger.EventTypeReserve, LotID: received.Lot.ID, Quantity: -1,
			UnitCost: decimal.NewFromInt(5), Currency: "USD",
			ReferenceType: ledger.ReferenceTypeCart, ReferenceID: "cart-1", ActorID: "user-1",
		})
		return err
	}))

	_, err := f.lots.Close(context.Background(), tenant, "user-1", received.Lot.ID, &AdjustRequest{Reason: "expired"})

	assert.ErrorIs(t, err, errs.ErrInvalidLotState)
}

func TestLot_ConservesReceivedQuantity(t *testing.T) {
	f := newFixture(t)
	received := f.receive(t, 20, "3")
	lotID := received.Lot.ID
	ctx := context.Background()

	appendLot := func(eventType ledger.EventType, qty int64, refType ledger.ReferenceType) {
		require.NoError(t, f.ledger.WithPartition(ctx, "test", f.key(), func(tx *gorm.DB) error {
			_, err := f.ledger.Append(tx, ledger.AppendInput{
				Partition: f.key(), EventType: eventType, LotID: lotID, Quantity: qty,
				UnitCost: decimal.NewFromInt(3), Currency: "USD",
				ReferenceType: refType, ReferenceID: "doc-1", ActorID: "user-1",
			})
			return err
		}))
	}
	appendLot(ledger.EventTypeReserve, -5, ledger.ReferenceTypeCart)
	appendLot(ledger.EventTypeSell, -5, ledger.ReferenceTypeReceipt)
	_, err := f.lots.AdjustQuantity(ctx, tenant, "user-1", lotID, -3, &AdjustRequest{Reason: "damaged"})
	require.NoError(t, err)

	lot, err := f.lots.Get(ctx, tenant, lotID)
	require.NoError(t, err)

	var sold, writtenOff int64
	for _, e := range f.lotEvents(t, lotID) {
		switch e.EventType {
		case ledger.EventTypeSell:
			sold += e.AbsQuantity()
		case ledger.EventTypeAdjust:
			writtenOff -= e.Quantity
		}
	}

	assert.Equal(t, lot.QuantityInitial, lot.QuantityOnHand+sold+writtenOff)
	assert.Equal(t, int64(12), lot.QuantityOnHand)
}

func TestApply_RejectsOverReservation(t *testing.T) {
	f := newFixture(t)
	received := f.receive(t, 2, "1")

	err := f.ledger.WithPartition(context.Background(), "test", f.key(), func(tx *gorm.DB) error {
		_, err := f.ledger.Append(tx, ledger.AppendInput{
			Partition: f.key(), EventType: ledger.EventTypeReserve, LotID: received.Lot.ID, Quantity: -3,
			UnitCost: decimal.NewFromInt(1), Currency: "USD",
			ReferenceType: ledger.ReferenceTypeCart, ReferenceID: "cart-1", ActorID: "user-1",
		})
		return err
	})

	assert.ErrorIs(t, err, errs.ErrInsufficientStock)
	events, err := f.ledger.Chain(context.Background(), f.key())
	require.NoError(t, err)
	assert.Len(t, events, 1, "rejected reservation must roll back its event")
}

func TestList_FIFOOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	second, err := f.lots.Receive(ctx, tenant, "user-1", &ReceiveRequest{
		CatalogItemID: f.itemID, LocationID: f.locationID, Quantity: 1, UnitCost: decimal.NewFromInt(1), ReceivedAt: &newer,
	})
	require.NoError(t, err)
	first, err := f.lots.Receive(ctx, tenant, "user-1", &ReceiveRequest{
		CatalogItemID: f.itemID, LocationID: f.locationID, Quantity: 1, UnitCost: decimal.NewFromInt(1), ReceivedAt: &older,
	})
	require.NoError(t, err)

	lots, err := f.lots.List(ctx, tenant, ListFilter{CatalogItemID: &f.itemID})
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, first.Lot.ID, lots[0].ID)
	assert.Equal(t, second.Lot.ID, lots[1].ID)

	reservable, err := ReservableFIFO(f.db, f.key())
	require.NoError(t, err)
	require.Len(t, reservable, 2)
	assert.Equal(t, first.Lot.ID, reservable[0].ID)
}

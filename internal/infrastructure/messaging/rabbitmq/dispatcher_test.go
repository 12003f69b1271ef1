package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/inventory-ledger/internal/domain/catalog"
	"github.com/your-org/inventory-ledger/internal/domain/inventory"
	"github.com/your-org/inventory-ledger/internal/domain/location"
	"github.com/your-org/inventory-ledger/internal/domain/lot"
	"github.com/your-org/inventory-ledger/internal/pkg/logger"
	"github.com/your-org/inventory-ledger/internal/pkg/testdb"
)

type dispatchFixture struct {
	dispatcher *Dispatcher
	itemID     uuid.UUID
	locationID uuid.UUID
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	ctx := context.Background()
	db := testdb.Open(t, inventory.Models()...)
	services := inventory.NewServices(db, nil, testdb.Config(), logger.Discard())

	loc, err := services.Locations.Create(ctx, "tenant-a", &location.CreateLocationRequest{Code: "web", Name: "Web fulfilment", Type: location.LocationTypeVirtual})
	require.NoError(t, err)
	itemID := uuid.New()
	require.NoError(t, services.Catalog.Upsert(ctx, &catalog.CatalogItem{ID: itemID, TenantID: "tenant-a", SKU: "CAP", Name: "Cap", IsActive: true}))

	_, err = services.Lots.Receive(ctx, "tenant-a", "clerk-1", &lot.ReceiveRequest{
		CatalogItemID: itemID, LocationID: loc.ID, Quantity: 5, UnitCost: decimal.NewFromInt(6),
	})
	require.NoError(t, err)

	return &dispatchFixture{
		dispatcher: NewDispatcher(services.Allocations, logger.Discard()),
		itemID:     itemID,
		locationID: loc.ID,
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return body
}

func TestDispatcher_ReserveThenFulfill(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	reply := f.dispatcher.Handle(ctx, CommandReserve, mustJSON(t, map[string]interface{}{
		"tenant_id": "tenant-a", "actor_id": "checkout-svc",
		"cart_id": "cart-mq", "catalog_item_id": f.itemID, "location_id": f.locationID, "quantity": 2,
	}))
	require.True(t, reply.OK, reply.Error)

	data := reply.Data.(map[string]interface{})
	allocationID := data["allocation_id"].(uuid.UUID)

	reply = f.dispatcher.Handle(ctx, CommandFulfill, mustJSON(t, SettleMessage{
		Envelope:     Envelope{TenantID: "tenant-a", ActorID: "checkout-svc"},
		AllocationID: allocationID,
		ReceiptID:    "R-MQ-1",
	}))
	require.True(t, reply.OK, reply.Error)
	assert.Len(t, reply.Data.(map[string]interface{})["event_ids"], 1)

	reply = f.dispatcher.Handle(ctx, CommandRelease, mustJSON(t, SettleMessage{
		Envelope:     Envelope{TenantID: "tenant-a", ActorID: "checkout-svc"},
		AllocationID: allocationID,
	}))
	assert.False(t, reply.OK)
	assert.Equal(t, "invalid_allocation_state", reply.Code)
}

func TestDispatcher_ReportsDomainErrors(t *testing.T) {
	f := newDispatchFixture(t)

	reply := f.dispatcher.Handle(context.Background(), CommandReserve, mustJSON(t, map[string]interface{}{
		"tenant_id": "tenant-a", "actor_id": "checkout-svc",
		"cart_id": "cart-big", "catalog_item_id": f.itemID, "location_id": f.locationID, "quantity": 50,
	}))
	assert.False(t, reply.OK)
	assert.Equal(t, "insufficient_stock", reply.Code)
}

func TestDispatcher_RejectsBadMessages(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		command Command
		body    []byte
	}{
		{"malformed json", CommandReserve, []byte("{")},
		{"missing tenant", CommandRelease, mustJSON(t, SettleMessage{Envelope: Envelope{ActorID: "svc"}, AllocationID: uuid.New()})},
		{"missing actor", CommandFulfill, mustJSON(t, SettleMessage{Envelope: Envelope{TenantID: "tenant-a"}, AllocationID: uuid.New()})},
		{"unknown command", Command("restock"), []byte("{}")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := f.dispatcher.Handle(ctx, tt.command, tt.body)
			assert.False(t, reply.OK)
			assert.Equal(t, "validation_error", reply.Code)
		})
	}
}

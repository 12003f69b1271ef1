package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"github.com/your-org/inventory-ledger/internal/pkg/logger"
	"github.com/your-org/inventory-ledger/internal/pkg/testdb"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t, Models()...)
	return NewService(db, testdb.Config(), logger.Discard()), db
}

func newTestKey() PartitionKey {
	return NewPartitionKey("tenant-a", uuid.New(), uuid.New())
}

func receiveInput(key PartitionKey, lotID uuid.UUID, qty int64) AppendInput {
	return AppendInput{
		Partition:     key,
		EventType:     EventTypeReceive,
		LotID:         lotID,
		Quantity:      qty,
		UnitCost:      decimal.NewFromInt(15),
		Currency:      "usd",
		ValueDelta:    decimal.NewFromInt(15 * qty),
		ReferenceType: ReferenceTypeGRN,
		ReferenceID:   "GRN-1",
		ActorID:       "user-1",
	}
}

func appendReceive(t *testing.T, svc *Service, key PartitionKey, qty int64) *InventoryEvent {
	t.Helper()
	var event *InventoryEvent
	err := svc.WithPartition(context.Background(), "test", key, func(tx *gorm.DB) error {
		var err error
		event, err = svc.Append(tx, receiveInput(key, uuid.New(), qty))
		return err
	})
	require.NoError(t, err)
	return event
}

type recordingApplier struct {
	seen []uuid.UUID
	err  error
}

func (a *recordingApplier) Apply(tx *gorm.DB, e *InventoryEvent) error {
	if a.err != nil {
		return a.err
	}
	a.seen = append(a.seen, e.ID)
	return nil
}

type recordingHook struct {
	mu   sync.Mutex
	keys []PartitionKey
}

func (h *recordingHook) Committed(ctx context.Context, key PartitionKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = append(h.keys, key)
}

func TestAppend_FirstEventStartsChain(t *testing.T) {
	svc, _ := newTestLedger(t)
	key := newTestKey()

	event := appendReceive(t, svc, key, 100)

	assert.Equal(t, int64(1), event.SequenceNumber)
	assert.Nil(t, event.PrevEventHash)
	assert.Equal(t, "USD", event.Currency)
	assert.Equal(t, ComputeHash(event), event.EventHash)
}

func TestAppend_LinksToPreviousEvent(t *testing.T) {
	svc, _ := newTestLedger(t)
	key := newTestKey()

	first := appendReceive(t, svc, key, 10)
	second := appendReceive(t, svc, key, 20)

	require.NotNil(t, second.PrevEventHash)
	assert.Equal(t, first.EventHash, *second.PrevEventHash)
	assert.Equal(t, int64(2), second.SequenceNumber)

	// Stored rows hash to the same value after the database round trip.
	chain, err := svc.Chain(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	for _, e := range chain {
		e := e
		assert.Equal(t, e.EventHash, ComputeHash(&e))
	}
}

func TestAppend_PartitionsHaveIndependentSequences(t *testing.T) {
	svc, _ := newTestLedger(t)
	a := newTestKey()
	b := newTestKey()

	appendReceive(t, svc, a, 1)
	appendReceive(t, svc, a, 1)
	first := appendReceive(t, svc, b, 1)

	assert.Equal(t, int64(1), first.SequenceNumber)
	assert.Nil(t, first.PrevEventHash)
}

func TestAppend_ValidatesSigns(t *testing.T) {
	svc, db := newTestLedger(t)
	key := newTestKey()

	cases := []struct {
		name      string
		eventType EventType
		qty       int64
	}{
		{"receive zero", EventTypeReceive, 0},
		{"receive negative", EventTypeReceive, -1},
		{"reserve positive", EventTypeReserve, 5},
		{"release negative", EventTypeRelease, -5},
		{"sell positive", EventTypeSell, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := receiveInput(key, uuid.New(), tc.qty)
			in.EventType = tc.eventType
			_, err := svc.Append(db, in)
			assert.ErrorIs(t, err, errs.ErrInvalidQuantity)
		})
	}
}

func TestAppend_ValidatesInput(t *testing.T) {
	svc, db := newTestLedger(t)
	key := newTestKey()

	badCurrency := receiveInput(key, uuid.New(), 1)
	badCurrency.Currency = "US"
	_, err := svc.Append(db, badCurrency)
	assert.ErrorIs(t, err, errs.ErrValidation)

	noActor := receiveInput(key, uuid.New(), 1)
	noActor.ActorID = ""
	_, err = svc.Append(db, noActor)
	assert.ErrorIs(t, err, errs.ErrValidation)

	emptyAdjust := receiveInput(key, uuid.New(), 0)
	emptyAdjust.EventType = EventTypeAdjust
	emptyAdjust.ValueDelta = decimal.Zero
	_, err = svc.Append(db, emptyAdjust)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestAppend_BlankCounterpartyIsNull(t *testing.T) {
	svc, db := newTestLedger(t)
	key := newTestKey()

	blank := "  "
	in := receiveInput(key, uuid.New(), 3)
	in.CounterpartyID = &blank

	event, err := svc.Append(db, in)
	require.NoError(t, err)
	assert.Nil(t, event.CounterpartyID)
}

func TestAppendAt_StaleTipConflicts(t *testing.T) {
	svc, db := newTestLedger(t)
	key := newTestKey()
	appendReceive(t, svc, key, 10)

	_, err := svc.AppendAt(db, Tip{}, receiveInput(key, uuid.New(), 5))

	assert.ErrorIs(t, err, errs.ErrConcurrentAppendConflict)
	assert.True(t, errs.IsRetryable(err))

	chain, err := svc.Chain(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, chain, 1, "conflicting append must not fork the chain")
}

func TestWithPartition_RetriesConflicts(t *testing.T) {
	svc, _ := newTestLedger(t)
	key := newTestKey()
	appendReceive(t, svc, key, 10)

	attempts := 0
	err := svc.WithPartition(context.Background(), "test", key, func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			_, err := svc.AppendAt(tx, Tip{}, receiveInput(key, uuid.New(), 5))
			return err
		}
		_, err := svc.Append(tx, receiveInput(key, uuid.New(), 5))
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	chain, err := svc.Chain(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, chain, 2)
}

func TestWithPartition_SurfacesConflictAfterBound(t *testing.T) {
	svc, _ := newTestLedger(t)
	key := newTestKey()
	appendReceive(t, svc, key, 10)

	attempts := 0
	err := svc.WithPartition(context.Background(), "test", key, func(tx *gorm.DB) error {
		attempts++
		_, err := svc.AppendAt(tx, Tip{}, receiveInput(key, uuid.New(), 5))
		return err
	})

	assert.ErrorIs(t, err, errs.ErrConcurrentAppendConflict)
	assert.Equal(t, testdb.Config().Ledger.MaxAppendRetries, attempts)
}

func TestWithPartition_DoesNotRetryBusinessErrors(t *testing.T) {
	svc, _ := newTestLedger(t)
	key := newTestKey()

	attempts := 0
	err := svc.WithPartition(context.Background(), "test", key, func(tx *gorm.DB) error {
		attempts++
		return errs.ErrInsufficientStock
	})

	assert.ErrorIs(t, err, errs.ErrInsufficientStock)
	assert.Equal(t, 1, attempts)
}

func TestWithPartition_ConcurrentAppendsStayGapFree(t *testing.T) {
	svc, _ := newTestLedger(t)
	key := newTestKey()

	const writers = 20
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- svc.WithPartition(context.Background(), "test", key, func(tx *gorm.DB) error {
				_, err := svc.Append(tx, receiveInput(key, uuid.New(), 1))
				return err
			})
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	chain, err := svc.Chain(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, chain, writers)
	assert.True(t, VerifyChain(chain).Valid)
	assert.Equal(t, 0, svc.locks.size())
}

func TestWithPartition_AppliersAndHooks(t *testing.T) {
	svc, _ := newTestLedger(t)
	applier := &recordingApplier{}
	hook := &recordingHook{}
	svc.RegisterApplier(applier)
	svc.RegisterCommitHook(hook)
	key := newTestKey()

	event := appendReceive(t, svc, key, 7)

	assert.Equal(t, []uuid.UUID{event.ID}, applier.seen)
	assert.Equal(t, []PartitionKey{key}, hook.keys)
}

func TestWithPartition_ApplierFailureRollsBack(t *testing.T) {
	svc, _ := newTestLedger(t)
	svc.RegisterApplier(&recordingApplier{err: errors.New("projection unavailable")})
	hook := &recordingHook{}
	svc.RegisterCommitHook(hook)
	key := newTestKey()

	err := svc.WithPartition(context.Background(), "test", key, func(tx *gorm.DB) error {
		_, err := svc.Append(tx, receiveInput(key, uuid.New(), 7))
		return err
	})

	require.Error(t, err)
	chain, err := svc.Chain(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, chain)
	assert.Empty(t, hook.keys)
}

func TestInventoryEvent_IsImmutable(t *testing.T) {
	svc, db := newTestLedger(t)
	key := newTestKey()
	event := appendReceive(t, svc, key, 10)

	err := db.Model(event).Update("quantity", 999).Error
	assert.ErrorIs(t, err, ErrImmutableEvent)

	err = db.Delete(event).Error
	assert.ErrorIs(t, err, ErrImmutableEvent)

	stored, err := svc.EventByID(context.Background(), key.TenantID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.Quantity)
}

func TestEventByID_ScopedToTenant(t *testing.T) {
	svc, _ := newTestLedger(t)
	key := newTestKey()
	event := appendReceive(t, svc, key, 10)

	_, err := svc.EventByID(context.Background(), "tenant-b", event.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEvents_PagesBySequence(t *testing.T) {
	svc, _ := newTestLedger(t)
	key := newTestKey()
	for i := 0; i < 5; i++ {
		appendReceive(t, svc, key, 1)
	}

	page, err := svc.Events(context.Background(), key, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].SequenceNumber)
	assert.Equal(t, int64(4), page[1].SequenceNumber)
}

func TestEventsByReference(t *testing.T) {
	svc, _ := newTestLedger(t)
	key := newTestKey()
	appendReceive(t, svc, key, 4)

	found, err := svc.EventsByReference(context.Background(), key.TenantID, ReferenceTypeGRN, "GRN-1", EventTypeReceive)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	none, err := svc.EventsByReference(context.Background(), key.TenantID, ReferenceTypeGRN, "GRN-1", EventTypeSell)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPartitions_ListsTenantPartitions(t *testing.T) {
	svc, _ := newTestLedger(t)
	a := newTestKey()
	b := newTestKey()
	appendReceive(t, svc, a, 1)
	appendReceive(t, svc, a, 1)
	appendReceive(t, svc, b, 1)
	appendReceive(t, svc, NewPartitionKey("tenant-b", uuid.New(), uuid.New()), 1)

	keys, err := svc.Partitions(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []PartitionKey{a, b}, keys)
}

func TestNow_UsesInjectedClockAtMicrosecondPrecision(t *testing.T) {
	svc, _ := newTestLedger(t)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.FixedZone("X", 3600))
	svc.SetClock(func() time.Time { return fixed })

	now := svc.Now()

	assert.Equal(t, time.UTC, now.Location())
	assert.Equal(t, 123456000, now.Nanosecond())
}

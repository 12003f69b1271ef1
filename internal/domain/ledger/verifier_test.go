package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"gorm.io/gorm"
)

type fixedWitness struct {
	tip Tip
}

func (w fixedWitness) WitnessedTip(ctx context.Context, key PartitionKey) (Tip, bool, error) {
	return w.tip, true, nil
}

func seedChain(t *testing.T, svc *Service, key PartitionKey, n int) []*InventoryEvent {
	t.Helper()
	events := make([]*InventoryEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, appendReceive(t, svc, key, int64(i+1)))
	}
	return events
}

func TestVerifyChain_EmptyChainIsValid(t *testing.T) {
	result := VerifyChain(nil)

	assert.True(t, result.Valid)
	assert.Equal(t, 0, result.Checked)
}

func TestVerify_ValidChain(t *testing.T) {
	svc, _ := newTestLedger(t)
	key := newTestKey()
	seedChain(t, svc, key, 3)

	result, err := NewVerifier(svc, nil).Verify(context.Background(), key)

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.Checked)
	assert.Nil(t, result.BrokenAtSequence)
}

func TestVerify_DetectsTamperedContents(t *testing.T) {
	svc, db := newTestLedger(t)
	key := newTestKey()
	events := seedChain(t, svc, key, 3)

	require.NoError(t, db.Exec("UPDATE inventory_events SET quantity = ? WHERE id = ?", 999, events[1].ID).Error)

	result, err := NewVerifier(svc, nil).Verify(context.Background(), key)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotNil(t, result.BrokenAtSequence)
	assert.Equal(t, int64(2), *result.BrokenAtSequence)
	assert.Equal(t, events[1].ID, *result.BrokenAtEventID)
	assert.Equal(t, 1, result.Checked)
	assert.Contains(t, result.Reason, "hash")
}

func TestVerify_DetectsBrokenLink(t *testing.T) {
	svc, db := newTestLedger(t)
	key := newTestKey()
	events := seedChain(t, svc, key, 3)

	forged := events[0].EventHash
	require.NoError(t, db.Exec("UPDATE inventory_events SET prev_event_hash = ? WHERE id = ?", forged, events[2].ID).Error)

	result, err := NewVerifier(svc, nil).Verify(context.Background(), key)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, int64(3), *result.BrokenAtSequence)
}

func TestVerify_DetectsDeletedEvent(t *testing.T) {
	svc, db := newTestLedger(t)
	key := newTestKey()
	events := seedChain(t, svc, key, 3)

	require.NoError(t, db.Exec("DELETE FROM inventory_events WHERE id = ?", events[1].ID).Error)

	result, err := NewVerifier(svc, nil).Verify(context.Background(), key)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, int64(2), *result.BrokenAtSequence)
	assert.Contains(t, result.Reason, "sequence gap")
}

func TestVerify_DetectsTruncatedTail(t *testing.T) {
	svc, db := newTestLedger(t)
	key := newTestKey()
	events := seedChain(t, svc, key, 3)
	tip := Tip{Sequence: 3, Hash: &events[2].EventHash}

	require.NoError(t, db.Exec("DELETE FROM inventory_events WHERE id = ?", events[2].ID).Error)

	result, err := NewVerifier(svc, fixedWitness{tip: tip}).Verify(context.Background(), key)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, int64(3), *result.BrokenAtSequence)
}

func TestVerify_WitnessBehindSnapshotIsValid(t *testing.T) {
	svc, _ := newTestLedger(t)
	key := newTestKey()
	events := seedChain(t, svc, key, 3)
	tip := Tip{Sequence: 2, Hash: &events[1].EventHash}

	result, err := NewVerifier(svc, fixedWitness{tip: tip}).Verify(context.Background(), key)

	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestVerify_QuarantinesPartitionUntilResolved(t *testing.T) {
	svc, db := newTestLedger(t)
	key := newTestKey()
	events := seedChain(t, svc, key, 2)
	require.NoError(t, db.Exec("UPDATE inventory_events SET actor_id = ? WHERE id = ?", "mallory", events[0].ID).Error)

	verifier := NewVerifier(svc, nil)
	_, err := verifier.Verify(context.Background(), key)
	require.NoError(t, err)
	// Verifying again must not raise a duplicate alert.
	_, err = verifier.Verify(context.Background(), key)
	require.NoError(t, err)

	alerts, err := svc.ListAlerts(context.Background(), key.TenantID, false)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(1), alerts[0].BrokenAtSequence)

	write := func() error {
		return svc.WithPartition(context.Background(), "test", key, func(tx *gorm.DB) error {
			_, err := svc.Append(tx, receiveInput(key, uuid.New(), 1))
			return err
		})
	}
	assert.ErrorIs(t, write(), errs.ErrIntegrityViolation)

	resolved, err := svc.ResolveAlert(context.Background(), key.TenantID, alerts[0].ID, "auditor-1")
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "auditor-1", *resolved.ResolvedBy)

	assert.NoError(t, write())

	open, err := svc.ListAlerts(context.Background(), key.TenantID, false)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestResolveAlert_UnknownAlert(t *testing.T) {
	svc, _ := newTestLedger(t)

	_, err := svc.ResolveAlert(context.Background(), "tenant-a", uuid.New(), "auditor-1")

	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestVerifyAll_ReportsEachPartition(t *testing.T) {
	svc, db := newTestLedger(t)
	good := newTestKey()
	bad := newTestKey()
	seedChain(t, svc, good, 2)
	badEvents := seedChain(t, svc, bad, 2)
	seedChain(t, svc, newTestKey(), 1)

	require.NoError(t, db.Exec("UPDATE inventory_events SET reference_id = ? WHERE id = ?", "GRN-X", badEvents[1].ID).Error)

	results, err := NewVerifier(svc, nil).VerifyAll(context.Background(), "tenant-a")

	require.NoError(t, err)
	require.Len(t, results, 3)

	invalid := 0
	for _, r := range results {
		if !r.Valid {
			invalid++
			assert.Equal(t, bad, r.Partition)
		}
	}
	assert.Equal(t, 1, invalid)
}

// internal/domain/ledger/verifier.go
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// VerificationResult describes the outcome of walking one partition chain
type VerificationResult struct {
	Partition        PartitionKey `json:"partition"`
	Valid            bool         `json:"valid"`
	Checked          int          `json:"checked"`
	BrokenAtEventID  *uuid.UUID   `json:"broken_at_event_id,omitempty"`
	BrokenAtSequence *int64       `json:"broken_at_sequence,omitempty"`
	Reason           string       `json:"reason,omitempty"`
}

// TipWitness reports the chain tip recorded outside the event table. A
// witness ahead of the chain means events were removed from its tail.
type TipWitness interface {
	WitnessedTip(ctx context.Context, key PartitionKey) (Tip, bool, error)
}

// Verifier walks partition chains and raises integrity alerts. It never
// writes to the event table.
type Verifier struct {
	ledger  *Service
	log     logrus.FieldLogger
	witness TipWitness
}

// NewVerifier creates a chain verifier over the ledger's storage
func NewVerifier(ledger *Service, witness TipWitness) *Verifier {
	return &Verifier{
		ledger:  ledger,
		log:     ledger.log,
		witness: witness,
	}
}

// VerifyChain checks an ordered partition chain: sequences run gap-free from
// 1, the first event has no predecessor, every other event links to the hash
// of the one before it, and every stored hash matches its recomputation.
func VerifyChain(events []InventoryEvent) VerificationResult {
	result := VerificationResult{Valid: true}
	if len(events) > 0 {
		result.Partition = events[0].Partition()
	}

	for i := range events {
		e := &events[i]
		expectedSeq := int64(i + 1)

		var reason string
		switch {
		case e.SequenceNumber != expectedSeq:
			reason = fmt.Sprintf("sequence gap: expected %d, found %d", expectedSeq, e.SequenceNumber)
		case i == 0 && e.PrevEventHash != nil:
			reason = "first event references a predecessor"
		case i > 0 && e.PrevEventHash == nil:
			reason = "missing link to previous event"
		case i > 0 && !hashEqual(*e.PrevEventHash, events[i-1].EventHash):
			reason = "previous hash does not match predecessor"
		case !hashEqual(ComputeHash(e), e.EventHash):
			reason = "event hash does not match contents"
		}

		if reason != "" {
			id := e.ID
			seq := expectedSeq
			result.Valid = false
			result.BrokenAtEventID = &id
			result.BrokenAtSequence = &seq
			result.Reason = reason
			return result
		}
		result.Checked++
	}

	return result
}

// Verify checks one partition. The chain is read with a single statement so
// concurrent appends past the snapshot are not observed.
func (v *Verifier) Verify(ctx context.Context, key PartitionKey) (*VerificationResult, error) {
	// The witness is read first so it can only trail the chain snapshot.
	var tip Tip
	witnessed := false
	if v.witness != nil {
		var err error
		tip, witnessed, err = v.witness.WitnessedTip(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read witnessed tip: %w", err)
		}
	}

	events, err := v.ledger.Chain(ctx, key)
	if err != nil {
		return nil, err
	}

	result := VerifyChain(events)
	result.Partition = key

	if result.Valid && witnessed {
		checkWitness(&result, events, tip)
	}

	if !result.Valid {
		metrics.IntegrityViolations.Inc()
		v.log.WithFields(logrus.Fields{
			"partition":          key.String(),
			"broken_at_event_id": result.BrokenAtEventID,
			"broken_at_sequence": result.BrokenAtSequence,
			"reason":             result.Reason,
		}).Error("Ledger integrity violation detected")

		if err := v.ledger.recordAlert(ctx, &result); err != nil {
			return nil, err
		}
	}

	return &result, nil
}

// checkWitness flags a chain that ends before, or diverges from, the tip
// recorded when an earlier event committed.
func checkWitness(result *VerificationResult, events []InventoryEvent, tip Tip) {
	chainSeq := int64(len(events))
	if tip.Sequence > chainSeq {
		seq := chainSeq + 1
		result.Valid = false
		result.BrokenAtSequence = &seq
		result.Reason = fmt.Sprintf("chain ends at sequence %d but tip %d was recorded", chainSeq, tip.Sequence)
		return
	}

	if tip.Sequence > 0 && tip.Hash != nil {
		e := events[tip.Sequence-1]
		if !hashEqual(*tip.Hash, e.EventHash) {
			id := e.ID
			seq := e.SequenceNumber
			result.Valid = false
			result.BrokenAtEventID = &id
			result.BrokenAtSequence = &seq
			result.Reason = "event hash differs from recorded chain tip"
		}
	}
}

// VerifyAll verifies every partition of the tenant with bounded parallelism.
// Results come back in partition order.
func (v *Verifier) VerifyAll(ctx context.Context, tenantID string) ([]VerificationResult, error) {
	keys, err := v.ledger.Partitions(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	limit := v.ledger.config.Ledger.VerifyParallelism
	if limit < 1 {
		limit = 1
	}

	results := make([]VerificationResult, len(keys))
	var mu sync.Mutex
	broken := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			result, err := v.Verify(gctx, key)
			if err != nil {
				return fmt.Errorf("verify %s: %w", key, err)
			}
			results[i] = *result
			if !result.Valid {
				mu.Lock()
				broken++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	v.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"partitions": len(keys),
		"broken":     broken,
	}).Info("Tenant ledger verification completed")

	return results, nil
}

// internal/domain/allocation/service.go
package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/config"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/domain/location"
	"github.com/your-org/inventory-ledger/internal/domain/lot"
	"github.com/your-org/inventory-ledger/internal/domain/projection"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"github.com/your-org/inventory-ledger/internal/pkg/metrics"
	"gorm.io/gorm"
)

// SweeperActor is recorded as the actor of expiry releases
const SweeperActor = "system:expiry-sweeper"

// Service manages reservations against partition stock
type Service struct {
	db          *gorm.DB
	ledger      *ledger.Service
	projections *projection.Service
	config      *config.Config
	log         logrus.FieldLogger
}

// NewService creates a new allocation service
func NewService(db *gorm.DB, ledgerService *ledger.Service, projections *projection.Service, cfg *config.Config, log logrus.FieldLogger) *Service {
	return &Service{
		db:          db,
		ledger:      ledgerService,
		projections: projections,
		config:      cfg,
		log:         log,
	}
}

// ReserveRequest represents a hold request for a cart
type ReserveRequest struct {
	CartID        string    `json:"cart_id" binding:"required,max=128"`
	CatalogItemID uuid.UUID `json:"catalog_item_id" binding:"required"`
	LocationID    uuid.UUID `json:"location_id" binding:"required"`
	Quantity      int64     `json:"quantity"`
	TTLSeconds    int64     `json:"ttl_seconds"`
}

// Reserve holds stock for a cart, drawing from lots oldest first. The
// availability check and the RESERVE appends share one partition
// transaction, so concurrent reservations cannot oversell.
func (s *Service) Reserve(ctx context.Context, tenantID, actorID string, req *ReserveRequest) (*Allocation, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: reserved quantity must be positive", errs.ErrInvalidQuantity)
	}
	cartID := strings.TrimSpace(req.CartID)
	if cartID == "" {
		return nil, fmt.Errorf("%w: cart id is required", errs.ErrValidation)
	}

	maxTTL := s.config.Ledger.MaxReservationTTL
	ttl := s.config.Ledger.DefaultReservationTTL
	if req.TTLSeconds != 0 {
		// Bound the seconds before scaling; large values wrap time.Duration.
		if req.TTLSeconds < 0 || req.TTLSeconds > int64(maxTTL/time.Second) {
			return nil, fmt.Errorf("%w: reservation ttl must be within (0, %s]", errs.ErrValidation, maxTTL)
		}
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	if ttl <= 0 || ttl > maxTTL {
		return nil, fmt.Errorf("%w: reservation ttl must be within (0, %s]", errs.ErrValidation, maxTTL)
	}

	key := ledger.NewPartitionKey(tenantID, req.CatalogItemID, req.LocationID)
	var allocation *Allocation

	err := s.ledger.WithPartition(ctx, "reserve", key, func(tx *gorm.DB) error {
		loc, err := location.Find(tx, tenantID, req.LocationID)
		if err != nil {
			return err
		}
		if !loc.IsActive() {
			return fmt.Errorf("%w: %s", errs.ErrInactiveLocation, loc.Code)
		}

		position, err := s.projections.GetTx(tx, key)
		if err != nil {
			return err
		}
		if position.QuantityAvailable < req.Quantity {
			return fmt.Errorf("%w: available %d, requested %d", errs.ErrInsufficientStock, position.QuantityAvailable, req.Quantity)
		}

		lots, err := lot.ReservableFIFO(tx, key)
		if err != nil {
			return err
		}

		now := s.ledger.Now()
		allocation = &Allocation{
			ID:            uuid.New(),
			TenantID:      tenantID,
			CatalogItemID: req.CatalogItemID,
			LocationID:    req.LocationID,
			CartID:        cartID,
			Quantity:      req.Quantity,
			Status:        AllocationStatusReserved,
			ReservedAt:    now,
			ExpiresAt:     now.Add(ttl),
		}

		remaining := req.Quantity
		for i := range lots {
			if remaining == 0 {
				break
			}
			l := &lots[i]
			take := l.Available()
			if take > remaining {
				take = remaining
			}

			event, err := s.ledger.Append(tx, ledger.AppendInput{
				Partition:     key,
				EventType:     ledger.EventTypeReserve,
				LotID:         l.ID,
				Quantity:      -take,
				UnitCost:      l.UnitCost,
				Currency:      l.Currency,
				ValueDelta:    decimal.Zero,
				ReferenceType: ledger.ReferenceTypeCart,
				ReferenceID:   cartID,
				ActorID:       actorID,
			})
			if err != nil {
				return err
			}

			allocation.Lines = append(allocation.Lines, AllocationLine{
				ID:             uuid.New(),
				AllocationID:   allocation.ID,
				Position:       len(allocation.Lines) + 1,
				LotID:          l.ID,
				Quantity:       take,
				ReserveEventID: event.ID,
			})
			remaining -= take
		}

		// The projection said yes but the lots disagree: refuse rather than
		// hold less than asked.
		if remaining > 0 {
			return fmt.Errorf("%w: lots hold %d fewer units than projected", errs.ErrInsufficientStock, remaining)
		}

		allocation.LotID = allocation.Lines[0].LotID
		allocation.EventID = allocation.Lines[0].ReserveEventID

		if err := tx.Create(allocation).Error; err != nil {
			return fmt.Errorf("failed to create allocation: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrInsufficientStock) {
			metrics.Reservations.WithLabelValues("insufficient_stock").Inc()
		} else {
			metrics.Reservations.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.Reservations.WithLabelValues("reserved").Inc()
	s.log.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"allocation_id": allocation.ID,
		"cart_id":       cartID,
		"quantity":      req.Quantity,
		"lots":          len(allocation.Lines),
		"expires_at":    allocation.ExpiresAt,
	}).Info("Stock reserved")

	return allocation, nil
}

// Fulfill converts a live reservation into a sale recorded against the
// receipt. Expired holds cannot be fulfilled even before the sweeper ran.
func (s *Service) Fulfill(ctx context.Context, tenantID, actorID string, allocationID uuid.UUID, receiptID string) (*Allocation, []uuid.UUID, error) {
	receiptID = strings.TrimSpace(receiptID)
	if receiptID == "" {
		return nil, nil, fmt.Errorf("%w: receipt id is required", errs.ErrValidation)
	}

	var eventIDs []uuid.UUID
	allocation, err := s.withAllocation(ctx, "fulfill", tenantID, allocationID, func(tx *gorm.DB, a *Allocation) error {
		if a.Status != AllocationStatusReserved {
			return fmt.Errorf("%w: allocation is %s", errs.ErrInvalidAllocationState, a.Status)
		}

		now := s.ledger.Now()
		if a.IsExpiredAt(now) {
			return fmt.Errorf("%w: reservation expired at %s", errs.ErrInvalidAllocationState, a.ExpiresAt.Format(time.RFC3339))
		}

		eventIDs = eventIDs[:0]
		for i := range a.Lines {
			line := &a.Lines[i]
			l, err := lot.Find(tx, tenantID, line.LotID)
			if err != nil {
				return err
			}

			event, err := s.ledger.Append(tx, ledger.AppendInput{
				Partition:     a.Partition(),
				EventType:     ledger.EventTypeSell,
				LotID:         line.LotID,
				Quantity:      -line.Quantity,
				UnitCost:      l.UnitCost,
				Currency:      l.Currency,
				ValueDelta:    l.UnitCost.Mul(decimal.NewFromInt(-line.Quantity)),
				ReferenceType: ledger.ReferenceTypeReceipt,
				ReferenceID:   receiptID,
				ActorID:       actorID,
			})
			if err != nil {
				return err
			}

			if err := tx.Model(&AllocationLine{}).Where("id = ?", line.ID).Update("settle_event_id", event.ID).Error; err != nil {
				return fmt.Errorf("failed to settle allocation line: %w", err)
			}
			line.SettleEventID = &event.ID
			eventIDs = append(eventIDs, event.ID)
		}

		first := eventIDs[0]
		a.Status = AllocationStatusFulfilled
		a.ReceiptID = &receiptID
		a.FulfilledAt = &now
		a.FulfillmentEventID = &first
		a.ClosedAt = &now

		return s.saveState(tx, a)
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.AllocationTransitions.WithLabelValues(string(AllocationStatusFulfilled)).Inc()
	s.log.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"allocation_id": allocationID,
		"receipt_id":    receiptID,
	}).Info("Reservation fulfilled")

	return allocation, eventIDs, nil
}

// Release returns a live reservation's units to available stock. Releasing
// an allocation that was already released or expired changes nothing.
func (s *Service) Release(ctx context.Context, tenantID, actorID string, allocationID uuid.UUID) (*Allocation, error) {
	allocation, _, err := s.close(ctx, tenantID, actorID, allocationID, AllocationStatusReleased, time.Time{})
	return allocation, err
}

// ExpireDue releases reservations whose hold lapsed before now, at most
// batch per call, and returns how many it expired. Each allocation is
// re-checked inside its partition transaction, so racing sweepers and
// racing fulfills resolve to exactly one terminal state.
func (s *Service) ExpireDue(ctx context.Context, now time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = s.config.Sweeper.BatchSize
	}

	var due []Allocation
	err := s.db.WithContext(ctx).
		Select("id", "tenant_id").
		Where("status = ? AND expires_at < ?", AllocationStatusReserved, now.UTC()).
		Order("expires_at ASC").
		Limit(batch).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find expired reservations: %w", err)
	}

	expired := 0
	for _, candidate := range due {
		_, transitioned, err := s.close(ctx, candidate.TenantID, SweeperActor, candidate.ID, AllocationStatusExpired, now.UTC())
		if err != nil {
			s.log.WithError(err).WithField("allocation_id", candidate.ID).Error("Failed to expire reservation")
			continue
		}
		if transitioned {
			expired++
		}
	}

	return expired, nil
}

// CompensateCart releases every live reservation of a cart. Checkout calls
// it when one of the cart's lines could not be reserved.
func (s *Service) CompensateCart(ctx context.Context, tenantID, actorID, cartID string) ([]Allocation, error) {
	var live []Allocation
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND cart_id = ? AND status = ?", tenantID, cartID, AllocationStatusReserved).
		Order("reserved_at ASC").
		Find(&live).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cart reservations: %w", err)
	}

	released := make([]Allocation, 0, len(live))
	for _, a := range live {
		result, err := s.Release(ctx, tenantID, actorID, a.ID)
		if err != nil {
			return released, fmt.Errorf("failed to release allocation %s: %w", a.ID, err)
		}
		released = append(released, *result)
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"cart_id":   cartID,
		"released":  len(released),
	}).Info("Cart reservations compensated")

	return released, nil
}

// Get retrieves an allocation with its lot lines
func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Allocation, error) {
	return find(s.db.WithContext(ctx), tenantID, id)
}

// ListByCart returns every allocation of a cart
func (s *Service) ListByCart(ctx context.Context, tenantID, cartID string) ([]Allocation, error) {
	var allocations []Allocation
	err := s.db.WithContext(ctx).Preload("Lines").
		Where("tenant_id = ? AND cart_id = ?", tenantID, cartID).
		Order("reserved_at ASC").
		Find(&allocations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	return allocations, nil
}

// close moves a live reservation into released or expired and appends one
// RELEASE per lot line. Expiry only applies once the hold has lapsed at
// the sweep instant.
func (s *Service) close(ctx context.Context, tenantID, actorID string, allocationID uuid.UUID, target AllocationStatus, sweepAt time.Time) (*Allocation, bool, error) {
	transitioned := false
	allocation, err := s.withAllocation(ctx, string(target), tenantID, allocationID, func(tx *gorm.DB, a *Allocation) error {
		switch a.Status {
		case AllocationStatusReleased, AllocationStatusExpired:
			return nil
		case AllocationStatusFulfilled:
			if target == AllocationStatusExpired {
				return nil
			}
			return fmt.Errorf("%w: allocation is fulfilled", errs.ErrInvalidAllocationState)
		}
		if target == AllocationStatusExpired && !a.IsExpiredAt(sweepAt) {
			return nil
		}

		for i := range a.Lines {
			line := &a.Lines[i]
			l, err := lot.Find(tx, tenantID, line.LotID)
			if err != nil {
				return err
			}

			event, err := s.ledger.Append(tx, ledger.AppendInput{
				Partition:     a.Partition(),
				EventType:     ledger.EventTypeRelease,
				LotID:         line.LotID,
				Quantity:      line.Quantity,
				UnitCost:      l.UnitCost,
				Currency:      l.Currency,
				ValueDelta:    decimal.Zero,
				ReferenceType: ledger.ReferenceTypeCart,
				ReferenceID:   a.CartID,
				ActorID:       actorID,
			})
			if err != nil {
				return err
			}

			if err := tx.Model(&AllocationLine{}).Where("id = ?", line.ID).Update("settle_event_id", event.ID).Error; err != nil {
				return fmt.Errorf("failed to settle allocation line: %w", err)
			}
			line.SettleEventID = &event.ID
		}

		now := s.ledger.Now()
		a.Status = target
		a.ClosedAt = &now
		transitioned = true

		return s.saveState(tx, a)
	})
	if err != nil {
		return nil, false, err
	}

	if transitioned {
		metrics.AllocationTransitions.WithLabelValues(string(target)).Inc()
		s.log.WithFields(logrus.Fields{
			"tenant_id":     tenantID,
			"allocation_id": allocationID,
			"status":        target,
			"actor_id":      actorID,
		}).Info("Reservation closed")
	}

	return allocation, transitioned, nil
}

// withAllocation resolves the allocation's partition, then runs fn in that
// partition's transaction with the allocation reloaded inside it.
func (s *Service) withAllocation(ctx context.Context, operation, tenantID string, id uuid.UUID, fn func(tx *gorm.DB, a *Allocation) error) (*Allocation, error) {
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	var result *Allocation
	err = s.ledger.WithPartition(ctx, operation, current.Partition(), func(tx *gorm.DB) error {
		a, err := find(tx, tenantID, id)
		if err != nil {
			return err
		}
		if err := fn(tx, a); err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) saveState(tx *gorm.DB, a *Allocation) error {
	err := tx.Model(&Allocation{}).Where("id = ?", a.ID).Updates(map[string]interface{}{
		"status":               a.Status,
		"receipt_id":           a.ReceiptID,
		"fulfilled_at":         a.FulfilledAt,
		"fulfillment_event_id": a.FulfillmentEventID,
		"closed_at":            a.ClosedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update allocation: %w", err)
	}
	return nil
}

func find(db *gorm.DB, tenantID string, id uuid.UUID) (*Allocation, error) {
	var a Allocation
	err := db.Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("tenant_id = ? AND id = ?", tenantID, id).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: allocation %s", errs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}
	return &a, nil
}

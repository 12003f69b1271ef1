// internal/domain/inventory/service.go
package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/config"
	"github.com/your-org/inventory-ledger/internal/domain/allocation"
	"github.com/your-org/inventory-ledger/internal/domain/catalog"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/domain/location"
	"github.com/your-org/inventory-ledger/internal/domain/lot"
	"github.com/your-org/inventory-ledger/internal/domain/projection"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"gorm.io/gorm"
)

// Services is the wired set of ledger components shared by the HTTP API,
// the message consumer and the CLI.
type Services struct {
	Ledger      *ledger.Service
	Verifier    *ledger.Verifier
	Projections *projection.Service
	Lots        *lot.Service
	Allocations *allocation.Service
	Locations   *location.Service
	Catalog     *catalog.Service
	Sweeper     *allocation.Sweeper
	Inventory   *Service
}

// NewServices wires the ledger with its appliers and commit hooks. The
// projection and lot counters are maintained inside every append
// transaction; the projection cache is dropped after commit. redisClient
// may be nil.
func NewServices(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, log logrus.FieldLogger) *Services {
	ledgerService := ledger.NewService(db, cfg, log)
	projections := projection.NewService(db, redisClient, ledgerService, cfg, log)
	lots := lot.NewService(db, ledgerService, cfg, log)

	ledgerService.RegisterApplier(projections)
	ledgerService.RegisterApplier(lots)
	ledgerService.RegisterCommitHook(projections)

	allocations := allocation.NewService(db, ledgerService, projections, cfg, log)

	return &Services{
		Ledger:      ledgerService,
		Verifier:    ledger.NewVerifier(ledgerService, projections),
		Projections: projections,
		Lots:        lots,
		Allocations: allocations,
		Locations:   location.NewService(db, log),
		Catalog:     catalog.NewService(db),
		Sweeper:     allocation.NewSweeper(allocations, redisClient, cfg, log),
		Inventory:   NewService(allocations, projections, log),
	}
}

// Service handles cart-level stock operations that span partitions
type Service struct {
	allocations *allocation.Service
	projections *projection.Service
	log         logrus.FieldLogger
}

// NewService creates a new inventory service
func NewService(allocations *allocation.Service, projections *projection.Service, log logrus.FieldLogger) *Service {
	return &Service{
		allocations: allocations,
		projections: projections,
		log:         log,
	}
}

// ReserveCart holds stock for every line of a cart. Lines live in different
// partitions, so there is no shared transaction: when a line cannot be held
// the holds taken by this call are released before returning. Holds the cart
// already had are left alone.
func (s *Service) ReserveCart(ctx context.Context, tenantID, actorID string, req *CartReservationRequest) ([]allocation.Allocation, error) {
	cartID := strings.TrimSpace(req.CartID)
	if cartID == "" {
		return nil, fmt.Errorf("%w: cart id is required", errs.ErrValidation)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: cart has no lines", errs.ErrValidation)
	}

	held := make([]allocation.Allocation, 0, len(req.Lines))
	for i, line := range req.Lines {
		a, err := s.allocations.Reserve(ctx, tenantID, actorID, &allocation.ReserveRequest{
			CartID:        cartID,
			CatalogItemID: line.CatalogItemID,
			LocationID:    line.LocationID,
			Quantity:      line.Quantity,
			TTLSeconds:    req.TTLSeconds,
		})
		if err != nil {
			s.compensate(ctx, tenantID, actorID, cartID, held)
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		held = append(held, *a)
	}

	return held, nil
}

// FulfillCart settles every live hold of a cart against one receipt. A
// failure part way leaves earlier lines sold; the returned allocations are
// the ones fulfilled before the error.
func (s *Service) FulfillCart(ctx context.Context, tenantID, actorID, cartID, receiptID string) ([]allocation.Allocation, error) {
	holds, err := s.allocations.ListByCart(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}

	fulfilled := make([]allocation.Allocation, 0, len(holds))
	for _, hold := range holds {
		if hold.Status != allocation.AllocationStatusReserved {
			continue
		}
		a, _, err := s.allocations.Fulfill(ctx, tenantID, actorID, hold.ID, receiptID)
		if err != nil {
			return fulfilled, fmt.Errorf("failed to fulfill allocation %s: %w", hold.ID, err)
		}
		fulfilled = append(fulfilled, *a)
	}

	if len(fulfilled) == 0 {
		return nil, fmt.Errorf("%w: cart %s has no live reservations", errs.ErrInvalidAllocationState, cartID)
	}
	return fulfilled, nil
}

// StockLevel sums an item's projections, optionally at a single location
func (s *Service) StockLevel(ctx context.Context, tenantID string, catalogItemID uuid.UUID, locationID *uuid.UUID) (*StockLevel, error) {
	projections, err := s.projections.List(ctx, tenantID, &catalogItemID)
	if err != nil {
		return nil, err
	}

	level := &StockLevel{
		CatalogItemID: catalogItemID,
		TotalCost:     decimal.Zero,
		Locations:     []LocationStock{},
	}
	for _, p := range projections {
		if locationID != nil && p.LocationID != *locationID {
			continue
		}
		level.OnHand += p.QuantityOnHand
		level.Reserved += p.QuantityReserved
		level.Available += p.QuantityAvailable
		level.TotalCost = level.TotalCost.Add(p.TotalCost)
		level.Locations = append(level.Locations, LocationStock{
			LocationID:  p.LocationID,
			OnHand:      p.QuantityOnHand,
			Reserved:    p.QuantityReserved,
			Available:   p.QuantityAvailable,
			AvgUnitCost: p.AvgUnitCost,
		})
	}

	return level, nil
}

func (s *Service) compensate(ctx context.Context, tenantID, actorID, cartID string, held []allocation.Allocation) {
	for i := len(held) - 1; i >= 0; i-- {
		if _, err := s.allocations.Release(ctx, tenantID, actorID, held[i].ID); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"tenant_id":     tenantID,
				"cart_id":       cartID,
				"allocation_id": held[i].ID,
			}).Error("Failed to release hold after partial cart reservation")
		}
	}
}

// internal/domain/lot/service.go
package lot

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
	"github.com/your-org/inventory-ledger/internal/domain/catalog"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/domain/location"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"gorm.io/gorm"
)

// Service handles lot receipt, revaluation, adjustment and closure. It is
// also the ledger applier that keeps lot counters in step with events.
type Service struct {
	db     *gorm.DB
	ledger *ledger.Service
	config *config.Config
	log    logrus.FieldLogger
}

// NewService creates a new lot service
func NewService(db *gorm.DB, ledgerService *ledger.Service, cfg *config.Config, log logrus.FieldLogger) *Service {
	return &Service{
		db:     db,
		ledger: ledgerService,
		config: cfg,
		log:    log,
	}
}

// ReceiveRequest represents a goods receipt into a new lot
type ReceiveRequest struct {
	CatalogItemID      uuid.UUID       `json:"catalog_item_id" binding:"required"`
	LocationID         uuid.UUID       `json:"location_id" binding:"required"`
	Quantity           int64           `json:"quantity"`
	UnitCost           decimal.Decimal `json:"unit_cost"`
	Currency           string          `json:"currency"`
	LotNumber          string          `json:"lot_number"`
	Barcode            *string         `json:"barcode"`
	SupplierID         *string         `json:"supplier_id"`
	SupplierInvoiceRef *string         `json:"supplier_invoice_ref"`
	GRNID              string          `json:"grn_id"`
	ReceivedAt         *time.Time      `json:"received_at"`
}

// ReceiveResult is the lot created by a receipt and its RECEIVE event
type ReceiveResult struct {
	Lot   *Lot                   `json:"lot"`
	Event *ledger.InventoryEvent `json:"event"`
}

// AdjustRequest carries the audit context of a lot adjustment
type AdjustRequest struct {
	ReferenceID string `json:"reference_id"`
	Reason      string `json:"reason" binding:"required,max=255"`
}

// ListFilter narrows a lot listing
type ListFilter struct {
	CatalogItemID *uuid.UUID
	LocationID    *uuid.UUID
	Status        LotStatus
}

// Apply keeps the lot row in step with each appended event
func (s *Service) Apply(tx *gorm.DB, event *ledger.InventoryEvent) error {
	var lot Lot
	if err := tx.Where("id = ?", event.LotID).First(&lot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: lot %s", errs.ErrNotFound, event.LotID)
		}
		return fmt.Errorf("failed to load lot: %w", err)
	}

	if lot.Partition() != event.Partition() {
		return fmt.Errorf("%w: lot %s does not belong to partition %s", errs.ErrValidation, lot.ID, event.Partition())
	}

	if err := lot.ApplyEvent(event); err != nil {
		return err
	}

	if err := tx.Save(&lot).Error; err != nil {
		return fmt.Errorf("failed to update lot: %w", err)
	}
	return nil
}

// Receive creates a lot and appends its RECEIVE event in one transaction
func (s *Service) Receive(ctx context.Context, tenantID, actorID string, req *ReceiveRequest) (*ReceiveResult, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: received quantity must be positive", errs.ErrInvalidQuantity)
	}
	if req.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost cannot be negative", errs.ErrValidation)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.config.Ledger.DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", errs.ErrValidation)
	}

	receivedAt := s.ledger.Now()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC().Truncate(time.Microsecond)
	}

	lotNumber := strings.TrimSpace(req.LotNumber)
	if lotNumber == "" {
		lotNumber = GenerateLotNumber(receivedAt)
	}

	grnID := strings.TrimSpace(req.GRNID)
	if grnID == "" && req.SupplierInvoiceRef != nil {
		grnID = *req.SupplierInvoiceRef
	}
	if grnID == "" {
		grnID = lotNumber
	}

	key := ledger.NewPartitionKey(tenantID, req.CatalogItemID, req.LocationID)
	var result ReceiveResult

	err := s.ledger.WithPartition(ctx, "receive", key, func(tx *gorm.DB) error {
		loc, err := location.Find(tx, tenantID, req.LocationID)
		if err != nil {
			return err
		}
		if !loc.IsActive() {
			return fmt.Errorf("%w: %s", errs.ErrInactiveLocation, loc.Code)
		}
		if _, err := catalog.Find(tx, tenantID, req.CatalogItemID); err != nil {
			return err
		}

		held, err := partitionCurrency(tx, key)
		if err != nil {
			return err
		}
		if held != "" && held != currency {
			return fmt.Errorf("%w: partition is valued in %s, cannot receive %s", errs.ErrValidation, held, currency)
		}

		var taken int64
		if err := tx.Model(&Lot{}).Where("tenant_id = ? AND lot_number = ?", tenantID, lotNumber).Count(&taken).Error; err != nil {
			return fmt.Errorf("failed to check lot number: %w", err)
		}
		if taken > 0 {
			return fmt.Errorf("%w: lot number %s already exists", errs.ErrValidation, lotNumber)
		}

		lot := &Lot{
			ID:                 uuid.New(),
			TenantID:           tenantID,
			CatalogItemID:      req.CatalogItemID,
			LocationID:         req.LocationID,
			LotNumber:          lotNumber,
			Barcode:            req.Barcode,
			QuantityInitial:    req.Quantity,
			UnitCost:           req.UnitCost.Round(4),
			Currency:           currency,
			ReceivedAt:         receivedAt,
			SupplierID:         req.SupplierID,
			SupplierInvoiceRef: req.SupplierInvoiceRef,
			Status:             LotStatusActive,
		}
		if err := tx.Create(lot).Error; err != nil {
			return fmt.Errorf("failed to create lot: %w", err)
		}

		event, err := s.ledger.Append(tx, ledger.AppendInput{
			Partition:      key,
			EventType:      ledger.EventTypeReceive,
			LotID:          lot.ID,
			Quantity:       req.Quantity,
			UnitCost:       lot.UnitCost,
			Currency:       currency,
			ValueDelta:     lot.UnitCost.Mul(decimal.NewFromInt(req.Quantity)),
			ReferenceType:  ledger.ReferenceTypeGRN,
			ReferenceID:    grnID,
			CounterpartyID: req.SupplierID,
			ActorID:        actorID,
		})
		if err != nil {
			return err
		}

		stored, err := find(tx, tenantID, lot.ID)
		if err != nil {
			return err
		}

		result = ReceiveResult{Lot: stored, Event: event}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"lot_id":     result.Lot.ID,
		"lot_number": result.Lot.LotNumber,
		"quantity":   req.Quantity,
		"event_id":   result.Event.ID,
	}).Info("Lot received")

	return &result, nil
}

// AdjustCost revalues the lot's remaining stock at a new unit cost
func (s *Service) AdjustCost(ctx context.Context, tenantID, actorID string, lotID uuid.UUID, newUnitCost decimal.Decimal, req *AdjustRequest) (*ledger.InventoryEvent, error) {
	if newUnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost cannot be negative", errs.ErrValidation)
	}
	newUnitCost = newUnitCost.Round(4)

	var event *ledger.InventoryEvent
	err := s.withLot(ctx, "adjust_cost", tenantID, lotID, func(tx *gorm.DB, lot *Lot) error {
		if lot.IsClosed() {
			return fmt.Errorf("%w: lot %s is closed", errs.ErrInvalidLotState, lot.LotNumber)
		}
		if lot.QuantityOnHand == 0 {
			return fmt.Errorf("%w: lot %s has no stock to revalue", errs.ErrInvalidLotState, lot.LotNumber)
		}
		if newUnitCost.Equal(lot.UnitCost) {
			return fmt.Errorf("%w: unit cost is unchanged", errs.ErrValidation)
		}

		valueDelta := newUnitCost.Sub(lot.UnitCost).Mul(decimal.NewFromInt(lot.QuantityOnHand))

		var err error
		event, err = s.appendAdjustment(tx, lot, actorID, 0, newUnitCost, valueDelta, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"lot_id":   lotID,
		"event_id": event.ID,
		"reason":   req.Reason,
	}).Info("Lot cost adjusted")

	return event, nil
}

// AdjustQuantity corrects the lot's on-hand stock. Decreases are limited to
// unreserved units and increases may not exceed the received quantity.
func (s *Service) AdjustQuantity(ctx context.Context, tenantID, actorID string, lotID uuid.UUID, delta int64, req *AdjustRequest) (*ledger.InventoryEvent, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: adjustment delta must be non-zero", errs.ErrInvalidQuantity)
	}

	var event *ledger.InventoryEvent
	err := s.withLot(ctx, "adjust_quantity", tenantID, lotID, func(tx *gorm.DB, lot *Lot) error {
		if lot.IsClosed() {
			return fmt.Errorf("%w: lot %s is closed", errs.ErrInvalidLotState, lot.LotNumber)
		}
		if delta < 0 && -delta > lot.Available() {
			return fmt.Errorf("%w: lot %s has %d unreserved units, cannot remove %d", errs.ErrInsufficientStock, lot.LotNumber, lot.Available(), -delta)
		}
		if delta > 0 && lot.QuantityOnHand+delta > lot.QuantityInitial {
			return fmt.Errorf("%w: lot %s cannot exceed its received quantity %d", errs.ErrInvalidQuantity, lot.LotNumber, lot.QuantityInitial)
		}

		valueDelta := lot.UnitCost.Mul(decimal.NewFromInt(delta))

		var err error
		event, err = s.appendAdjustment(tx, lot, actorID, delta, lot.UnitCost, valueDelta, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"lot_id":   lotID,
		"event_id": event.ID,
		"delta":    delta,
		"reason":   req.Reason,
	}).Info("Lot quantity adjusted")

	return event, nil
}

// Close writes off any remaining stock and retires the lot. Lots with
// reserved units cannot be closed.
func (s *Service) Close(ctx context.Context, tenantID, actorID string, lotID uuid.UUID, req *AdjustRequest) (*Lot, error) {
	var closed *Lot
	err := s.withLot(ctx, "close_lot", tenantID, lotID, func(tx *gorm.DB, lot *Lot) error {
		if lot.IsClosed() {
			return fmt.Errorf("%w: lot %s is already closed", errs.ErrInvalidLotState, lot.LotNumber)
		}
		if lot.QuantityReserved > 0 {
			return fmt.Errorf("%w: lot %s has %d reserved units", errs.ErrInvalidLotState, lot.LotNumber, lot.QuantityReserved)
		}

		if lot.QuantityOnHand > 0 {
			writeOff := -lot.QuantityOnHand
			valueDelta := lot.UnitCost.Mul(decimal.NewFromInt(writeOff))
			if _, err := s.appendAdjustment(tx, lot, actorID, writeOff, lot.UnitCost, valueDelta, req); err != nil {
				return err
			}
		}

		if err := tx.Model(&Lot{}).Where("id = ?", lot.ID).Update("status", LotStatusClosed).Error; err != nil {
			return fmt.Errorf("failed to close lot: %w", err)
		}

		var err error
		closed, err = find(tx, tenantID, lot.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"lot_id":     lotID,
		"lot_number": closed.LotNumber,
		"reason":     req.Reason,
	}).Info("Lot closed")

	return closed, nil
}

// Get retrieves a lot of the tenant
func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Lot, error) {
	return find(s.db.WithContext(ctx), tenantID, id)
}

// List returns the tenant's lots in FIFO order
func (s *Service) List(ctx context.Context, tenantID string, filter ListFilter) ([]Lot, error) {
	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.CatalogItemID != nil {
		query = query.Where("catalog_item_id = ?", *filter.CatalogItemID)
	}
	if filter.LocationID != nil {
		query = query.Where("location_id = ?", *filter.LocationID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var lots []Lot
	if err := query.Order("received_at ASC, id ASC").Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	return lots, nil
}

// ReservableFIFO returns the partition's active lots with unreserved stock,
// oldest receipt first and lot id as tie-breaker.
func ReservableFIFO(tx *gorm.DB, key ledger.PartitionKey) ([]Lot, error) {
	var lots []Lot
	err := tx.Where("tenant_id = ? AND catalog_item_id = ? AND location_id = ? AND status = ? AND quantity_on_hand > quantity_reserved",
		key.TenantID, key.CatalogItemID, key.LocationID, LotStatusActive).
		Order("received_at ASC, id ASC").
		Find(&lots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load reservable lots: %w", err)
	}
	return lots, nil
}

// partitionCurrency returns the currency of the partition's first lot, or
// "" when nothing was received yet. All lots of a partition share it.
func partitionCurrency(tx *gorm.DB, key ledger.PartitionKey) (string, error) {
	var lots []Lot
	err := tx.Select("currency").
		Where("tenant_id = ? AND catalog_item_id = ? AND location_id = ?", key.TenantID, key.CatalogItemID, key.LocationID).
		Order("received_at ASC, id ASC").
		Limit(1).
		Find(&lots).Error
	if err != nil {
		return "", fmt.Errorf("failed to load partition currency: %w", err)
	}
	if len(lots) == 0 {
		return "", nil
	}
	return lots[0].Currency, nil
}

// Find loads a lot of the tenant through db
func Find(db *gorm.DB, tenantID string, id uuid.UUID) (*Lot, error) {
	return find(db, tenantID, id)
}

func find(db *gorm.DB, tenantID string, id uuid.UUID) (*Lot, error) {
	var lot Lot
	if err := db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&lot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: lot %s", errs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return &lot, nil
}

// withLot resolves the lot's partition, then runs fn in that partition's
// transaction with the lot reloaded inside it.
func (s *Service) withLot(ctx context.Context, operation, tenantID string, lotID uuid.UUID, fn func(tx *gorm.DB, lot *Lot) error) error {
	lot, err := s.Get(ctx, tenantID, lotID)
	if err != nil {
		return err
	}

	return s.ledger.WithPartition(ctx, operation, lot.Partition(), func(tx *gorm.DB) error {
		current, err := find(tx, tenantID, lotID)
		if err != nil {
			return err
		}
		return fn(tx, current)
	})
}

func (s *Service) appendAdjustment(tx *gorm.DB, lot *Lot, actorID string, delta int64, unitCost, valueDelta decimal.Decimal, req *AdjustRequest) (*ledger.InventoryEvent, error) {
	referenceID := strings.TrimSpace(req.ReferenceID)
	if referenceID == "" {
		referenceID = "ADJ-" + strings.ToUpper(uuid.New().String()[:8])
	}

	return s.ledger.Append(tx, ledger.AppendInput{
		Partition:     lot.Partition(),
		EventType:     ledger.EventTypeAdjust,
		LotID:         lot.ID,
		Quantity:      delta,
		UnitCost:      unitCost,
		Currency:      lot.Currency,
		ValueDelta:    valueDelta,
		ReferenceType: ledger.ReferenceTypeAdjustment,
		ReferenceID:   referenceID,
		ActorID:       actorID,
	})
}

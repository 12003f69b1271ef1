// internal/domain/ledger/service.go
package ledger

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
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"github.com/your-org/inventory-ledger/internal/pkg/metrics"
	"gorm.io/gorm"
)

// Applier folds each appended event into derived state inside the append
// transaction. The projection engine is the production applier.
type Applier interface {
	Apply(tx *gorm.DB, event *InventoryEvent) error
}

// CommitHook is notified after a partition transaction committed
type CommitHook interface {
	Committed(ctx context.Context, key PartitionKey)
}

// Service appends events to partition hash chains and serializes writers
// per partition.
type Service struct {
	db       *gorm.DB
	config   *config.Config
	log      logrus.FieldLogger
	now      func() time.Time
	locks    *partitionLocker
	appliers []Applier
	hooks    []CommitHook
}

// NewService creates a new ledger service
func NewService(db *gorm.DB, cfg *config.Config, log logrus.FieldLogger) *Service {
	return &Service{
		db:     db,
		config: cfg,
		log:    log,
		now:    time.Now,
		locks:  newPartitionLocker(),
	}
}

// RegisterApplier adds an in-transaction consumer of appended events
func (s *Service) RegisterApplier(a Applier) {
	s.appliers = append(s.appliers, a)
}

// RegisterCommitHook adds a post-commit listener
func (s *Service) RegisterCommitHook(h CommitHook) {
	s.hooks = append(s.hooks, h)
}

// SetClock replaces the time source. Used by tests and replay tooling.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the service clock in UTC at storage precision
func (s *Service) Now() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// DB returns the underlying database handle
func (s *Service) DB() *gorm.DB {
	return s.db
}

// AppendInput carries the caller-supplied fields of a new event
type AppendInput struct {
	Partition      PartitionKey
	EventType      EventType
	LotID          uuid.UUID
	Quantity       int64
	UnitCost       decimal.Decimal
	Currency       string
	ValueDelta     decimal.Decimal
	ReferenceType  ReferenceType
	ReferenceID    string
	CounterpartyID *string
	ActorID        string
}

// Tip is the chain tip of a partition. An empty partition has sequence 0
// and no hash.
type Tip struct {
	Sequence int64
	Hash     *string
}

// ReadTip returns the latest sequence and hash of the partition as seen by tx
func (s *Service) ReadTip(tx *gorm.DB, key PartitionKey) (Tip, error) {
	var last InventoryEvent
	err := tx.Select("sequence_number", "event_hash").
		Where("tenant_id = ? AND catalog_item_id = ? AND location_id = ?", key.TenantID, key.CatalogItemID, key.LocationID).
		Order("sequence_number DESC").
		Limit(1).
		Take(&last).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Tip{}, nil
		}
		return Tip{}, fmt.Errorf("failed to read chain tip: %w", err)
	}

	hash := last.EventHash
	return Tip{Sequence: last.SequenceNumber, Hash: &hash}, nil
}

// Append extends the partition chain by one event inside tx
func (s *Service) Append(tx *gorm.DB, in AppendInput) (*InventoryEvent, error) {
	tip, err := s.ReadTip(tx, in.Partition)
	if err != nil {
		return nil, err
	}
	return s.AppendAt(tx, tip, in)
}

// AppendAt writes the next event assuming expected is still the chain tip.
// The unique (partition, sequence) index turns a stale tip into
// ErrConcurrentAppendConflict instead of a fork.
func (s *Service) AppendAt(tx *gorm.DB, expected Tip, in AppendInput) (*InventoryEvent, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	event := &InventoryEvent{
		ID:             uuid.New(),
		TenantID:       in.Partition.TenantID,
		EventType:      in.EventType,
		CatalogItemID:  in.Partition.CatalogItemID,
		LotID:          in.LotID,
		LocationID:     in.Partition.LocationID,
		Quantity:       in.Quantity,
		UnitCost:       in.UnitCost.Round(moneyScale),
		Currency:       strings.ToUpper(in.Currency),
		ValueDelta:     in.ValueDelta.Round(moneyScale),
		ReferenceType:  in.ReferenceType,
		ReferenceID:    in.ReferenceID,
		CounterpartyID: normalizeOptional(in.CounterpartyID),
		PrevEventHash:  expected.Hash,
		SequenceNumber: expected.Sequence + 1,
		ActorID:        in.ActorID,
		CreatedAt:      s.Now(),
	}
	event.EventHash = ComputeHash(event)

	if err := tx.Create(event).Error; err != nil {
		if isDuplicateKey(err) {
			metrics.AppendConflicts.Inc()
			return nil, fmt.Errorf("%w: partition %s at sequence %d", errs.ErrConcurrentAppendConflict, in.Partition, event.SequenceNumber)
		}
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	for _, applier := range s.appliers {
		if err := applier.Apply(tx, event); err != nil {
			return nil, fmt.Errorf("failed to apply event %s: %w", event.ID, err)
		}
	}

	metrics.EventsAppended.WithLabelValues(string(event.EventType)).Inc()

	s.log.WithFields(logrus.Fields{
		"partition":  in.Partition.String(),
		"event_id":   event.ID,
		"event_type": event.EventType,
		"sequence":   event.SequenceNumber,
		"quantity":   event.Quantity,
		"hash":       shortHash(event.EventHash),
	}).Debug("Inventory event appended")

	return event, nil
}

// WithPartition runs fn in a single database transaction while holding the
// partition's writer lock. Chain tip conflicts roll the transaction back and
// fn is invoked again against the fresh tip, up to the configured bound.
func (s *Service) WithPartition(ctx context.Context, operation string, key PartitionKey, fn func(tx *gorm.DB) error) error {
	unlock := s.locks.Lock(key.String())
	defer unlock()

	start := time.Now()
	maxAttempts := s.config.Ledger.MaxAppendRetries

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = s.ensureTrusted(ctx, key); err != nil {
			break
		}

		err = s.db.WithContext(ctx).Transaction(fn)
		if err == nil || !errs.IsRetryable(err) {
			break
		}

		s.log.WithFields(logrus.Fields{
			"partition": key.String(),
			"operation": operation,
			"attempt":   attempt,
		}).Warn("Chain tip moved during partition transaction, retrying")

		if attempt == maxAttempts {
			metrics.RetriesExhausted.Inc()
			break
		}

		select {
		case <-ctx.Done():
			err = fmt.Errorf("partition transaction cancelled: %w", ctx.Err())
		case <-time.After(s.config.Ledger.RetryBackoff * time.Duration(attempt)):
		}
		if ctx.Err() != nil {
			break
		}
	}

	result := "ok"
	if err != nil {
		result = errs.Code(err)
	}
	metrics.PartitionTxDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())

	if err != nil {
		return err
	}

	for _, hook := range s.hooks {
		hook.Committed(ctx, key)
	}
	return nil
}

// Events returns a page of partition events after the given sequence
func (s *Service) Events(ctx context.Context, key PartitionKey, afterSequence int64, limit int) ([]InventoryEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var events []InventoryEvent
	err := s.partitionQuery(s.db.WithContext(ctx), key).
		Where("sequence_number > ?", afterSequence).
		Order("sequence_number ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// Chain loads the whole partition in sequence order with one statement so
// the result is a consistent snapshot even while writers append.
func (s *Service) Chain(ctx context.Context, key PartitionKey) ([]InventoryEvent, error) {
	return s.ChainUpTo(ctx, key, 0)
}

// ChainUpTo loads the partition up to and including maxSequence. Zero
// means the whole chain.
func (s *Service) ChainUpTo(ctx context.Context, key PartitionKey, maxSequence int64) ([]InventoryEvent, error) {
	return s.ChainIn(s.db.WithContext(ctx), key, maxSequence)
}

// ChainIn loads the partition chain through tx, up to maxSequence when it
// is positive.
func (s *Service) ChainIn(tx *gorm.DB, key PartitionKey, maxSequence int64) ([]InventoryEvent, error) {
	query := s.partitionQuery(tx, key)
	if maxSequence > 0 {
		query = query.Where("sequence_number <= ?", maxSequence)
	}

	var events []InventoryEvent
	if err := query.Order("sequence_number ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load partition chain: %w", err)
	}
	return events, nil
}

// EventByID loads one event of the tenant
func (s *Service) EventByID(ctx context.Context, tenantID string, id uuid.UUID) (*InventoryEvent, error) {
	var event InventoryEvent
	if err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: event %s", errs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	return &event, nil
}

// EventsByReference returns the tenant's events tied to one business document
func (s *Service) EventsByReference(ctx context.Context, tenantID string, refType ReferenceType, refID string, eventType EventType) ([]InventoryEvent, error) {
	query := s.db.WithContext(ctx).Where("tenant_id = ? AND reference_type = ? AND reference_id = ?", tenantID, refType, refID)
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	var events []InventoryEvent
	if err := query.Order("created_at ASC, sequence_number ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load events by reference: %w", err)
	}
	return events, nil
}

// Partitions lists every partition of the tenant that has at least one event
func (s *Service) Partitions(ctx context.Context, tenantID string) ([]PartitionKey, error) {
	var keys []PartitionKey
	err := s.db.WithContext(ctx).Model(&InventoryEvent{}).
		Distinct("tenant_id", "catalog_item_id", "location_id").
		Where("tenant_id = ?", tenantID).
		Order("catalog_item_id, location_id").
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	return keys, nil
}

func (s *Service) partitionQuery(db *gorm.DB, key PartitionKey) *gorm.DB {
	return db.Where("tenant_id = ? AND catalog_item_id = ? AND location_id = ?", key.TenantID, key.CatalogItemID, key.LocationID)
}

func validateInput(in AppendInput) error {
	if in.Partition.TenantID == "" || in.Partition.CatalogItemID == uuid.Nil || in.Partition.LocationID == uuid.Nil {
		return fmt.Errorf("%w: incomplete partition key", errs.ErrValidation)
	}
	if in.LotID == uuid.Nil {
		return fmt.Errorf("%w: lot id is required", errs.ErrValidation)
	}
	if !ValidEventType(in.EventType) {
		return fmt.Errorf("%w: unknown event type %q", errs.ErrValidation, in.EventType)
	}
	if !ValidReferenceType(in.ReferenceType) || in.ReferenceID == "" {
		return fmt.Errorf("%w: reference type and id are required", errs.ErrValidation)
	}
	if len(in.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", errs.ErrValidation)
	}
	if in.ActorID == "" {
		return fmt.Errorf("%w: actor id is required", errs.ErrValidation)
	}

	switch in.EventType {
	case EventTypeReceive, EventTypeRelease:
		if in.Quantity <= 0 {
			return fmt.Errorf("%w: %s requires a positive quantity", errs.ErrInvalidQuantity, in.EventType)
		}
	case EventTypeReserve, EventTypeSell:
		if in.Quantity >= 0 {
			return fmt.Errorf("%w: %s requires a negative quantity", errs.ErrInvalidQuantity, in.EventType)
		}
	case EventTypeAdjust:
		if in.Quantity == 0 && in.ValueDelta.IsZero() {
			return fmt.Errorf("%w: adjustment changes nothing", errs.ErrValidation)
		}
	}
	if in.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost cannot be negative", errs.ErrValidation)
	}
	return nil
}

func normalizeOptional(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// isDuplicateKey recognizes unique violations from every supported driver,
// translated or raw.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}

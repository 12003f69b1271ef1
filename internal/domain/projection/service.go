// internal/domain/projection/service.go
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/config"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"gorm.io/gorm"
)

// Service maintains partition projections. It is registered on the ledger
// as an applier, a commit hook and the chain tip witness.
type Service struct {
	db          *gorm.DB
	redisClient *redis.Client
	ledger      *ledger.Service
	config      *config.Config
	log         logrus.FieldLogger
}

// DriftReport compares the stored projection with a replay of the ledger
type DriftReport struct {
	Partition ledger.PartitionKey `json:"partition"`
	Drifted   bool                `json:"drifted"`
	Stored    *Projection         `json:"stored"`
	Replayed  Projection          `json:"replayed"`
}

// NewService creates a new projection service. redisClient may be nil.
func NewService(db *gorm.DB, redisClient *redis.Client, ledgerService *ledger.Service, cfg *config.Config, log logrus.FieldLogger) *Service {
	return &Service{
		db:          db,
		redisClient: redisClient,
		ledger:      ledgerService,
		config:      cfg,
		log:         log,
	}
}

// Apply folds the event into the partition row inside the append transaction
func (s *Service) Apply(tx *gorm.DB, event *ledger.InventoryEvent) error {
	current, found, err := s.load(tx, event.Partition())
	if err != nil {
		return err
	}

	next := Fold(current, event)
	if !found {
		next.ID = uuid.New()
		if err := tx.Create(&next).Error; err != nil {
			return fmt.Errorf("failed to create projection: %w", err)
		}
		return nil
	}

	if err := tx.Save(&next).Error; err != nil {
		return fmt.Errorf("failed to update projection: %w", err)
	}
	return nil
}

// Committed drops the cached projection once the partition changed
func (s *Service) Committed(ctx context.Context, key ledger.PartitionKey) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Del(ctx, cacheKey(key)).Err(); err != nil {
		s.log.WithError(err).WithField("partition", key.String()).Warn("Failed to invalidate projection cache")
	}
}

// GetTx reads the partition position through tx. A partition without
// events has the empty position.
func (s *Service) GetTx(tx *gorm.DB, key ledger.PartitionKey) (Projection, error) {
	p, _, err := s.load(tx, key)
	return p, err
}

// Get returns the projection of a partition, served from Redis when cached
func (s *Service) Get(ctx context.Context, key ledger.PartitionKey) (*Projection, error) {
	if cached, ok := s.getCached(ctx, key); ok {
		return cached, nil
	}

	p, found, err := s.load(s.db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: no stock recorded for %s", errs.ErrNotFound, key)
	}

	s.setCached(ctx, key, &p)
	return &p, nil
}

// WitnessedTip returns the chain tip recorded with the projection
func (s *Service) WitnessedTip(ctx context.Context, key ledger.PartitionKey) (ledger.Tip, bool, error) {
	p, found, err := s.load(s.db.WithContext(ctx), key)
	if err != nil || !found {
		return ledger.Tip{}, false, err
	}

	hash := p.LastEventHash
	return ledger.Tip{Sequence: p.LastSequence, Hash: &hash}, true, nil
}

// Rebuild replays the partition's ledger and overwrites its projection row
func (s *Service) Rebuild(ctx context.Context, key ledger.PartitionKey) (*Projection, error) {
	var rebuilt Projection
	err := s.ledger.WithPartition(ctx, "rebuild_projection", key, func(tx *gorm.DB) error {
		events, err := s.ledger.ChainIn(tx, key, 0)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("%w: no events for %s", errs.ErrNotFound, key)
		}

		current, found, err := s.load(tx, key)
		if err != nil {
			return err
		}

		rebuilt = Replay(key, events)
		if found {
			rebuilt.ID = current.ID
			return tx.Save(&rebuilt).Error
		}
		rebuilt.ID = uuid.New()
		return tx.Create(&rebuilt).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"partition":     key.String(),
		"last_sequence": rebuilt.LastSequence,
		"on_hand":       rebuilt.QuantityOnHand,
	}).Info("Projection rebuilt from ledger")

	return &rebuilt, nil
}

// CheckDrift replays the ledger up to the stored projection's sequence and
// compares. Projection and events commit together, so the prefix is stable.
func (s *Service) CheckDrift(ctx context.Context, key ledger.PartitionKey) (*DriftReport, error) {
	stored, found, err := s.load(s.db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: no projection for %s", errs.ErrNotFound, key)
	}

	events, err := s.ledger.ChainUpTo(ctx, key, stored.LastSequence)
	if err != nil {
		return nil, err
	}

	report := &DriftReport{
		Partition: key,
		Stored:    &stored,
		Replayed:  Replay(key, events),
	}
	report.Drifted = !stored.SameState(&report.Replayed)

	if report.Drifted {
		s.log.WithFields(logrus.Fields{
			"partition":         key.String(),
			"stored_on_hand":    stored.QuantityOnHand,
			"replayed_on_hand":  report.Replayed.QuantityOnHand,
			"stored_reserved":   stored.QuantityReserved,
			"replayed_reserved": report.Replayed.QuantityReserved,
		}).Warn("Projection drift detected")
	}

	return report, nil
}

// List returns the tenant's projections, optionally narrowed to one item
func (s *Service) List(ctx context.Context, tenantID string, catalogItemID *uuid.UUID) ([]Projection, error) {
	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if catalogItemID != nil {
		query = query.Where("catalog_item_id = ?", *catalogItemID)
	}

	var projections []Projection
	if err := query.Order("catalog_item_id, location_id").Find(&projections).Error; err != nil {
		return nil, fmt.Errorf("failed to list projections: %w", err)
	}
	return projections, nil
}

func (s *Service) load(db *gorm.DB, key ledger.PartitionKey) (Projection, bool, error) {
	var p Projection
	err := db.Where("tenant_id = ? AND catalog_item_id = ? AND location_id = ?", key.TenantID, key.CatalogItemID, key.LocationID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Empty(key), false, nil
		}
		return Projection{}, false, fmt.Errorf("failed to load projection: %w", err)
	}
	return p, true, nil
}

func cacheKey(key ledger.PartitionKey) string {
	return fmt.Sprintf("inventory:projection:%s:%s:%s", key.TenantID, key.CatalogItemID, key.LocationID)
}

func (s *Service) getCached(ctx context.Context, key ledger.PartitionKey) (*Projection, bool) {
	if s.redisClient == nil {
		return nil, false
	}

	data, err := s.redisClient.Get(ctx, cacheKey(key)).Result()
	if err == redis.Nil {
		return nil, false
	} else if err != nil {
		s.log.WithError(err).Debug("Projection cache read failed")
		return nil, false
	}

	var p Projection
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (s *Service) setCached(ctx context.Context, key ledger.PartitionKey, p *Projection) {
	if s.redisClient == nil {
		return
	}

	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.redisClient.Set(ctx, cacheKey(key), data, s.config.Cache.ProjectionTTL).Err(); err != nil {
		s.log.WithError(err).Debug("Projection cache write failed")
	}
}

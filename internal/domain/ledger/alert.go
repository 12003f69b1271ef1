// internal/domain/ledger/alert.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"gorm.io/gorm"
)

// IntegrityAlert records a broken partition chain. While unresolved the
// partition is quarantined and refuses new writes.
type IntegrityAlert struct {
	ID               uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID         string     `gorm:"not null;size:64;index:idx_integrity_alerts_partition,priority:1" json:"tenant_id"`
	CatalogItemID    uuid.UUID  `gorm:"type:varchar(36);not null;index:idx_integrity_alerts_partition,priority:2" json:"catalog_item_id"`
	LocationID       uuid.UUID  `gorm:"type:varchar(36);not null;index:idx_integrity_alerts_partition,priority:3" json:"location_id"`
	BrokenAtEventID  *uuid.UUID `gorm:"type:varchar(36)" json:"broken_at_event_id,omitempty"`
	BrokenAtSequence int64      `gorm:"not null" json:"broken_at_sequence"`
	Reason           string     `gorm:"not null;size:255" json:"reason"`
	Resolved         bool       `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedBy       *string    `gorm:"size:128" json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// TableName pins the alert table name
func (IntegrityAlert) TableName() string {
	return "inventory_integrity_alerts"
}

// Partition returns the alert's partition key
func (a *IntegrityAlert) Partition() PartitionKey {
	return NewPartitionKey(a.TenantID, a.CatalogItemID, a.LocationID)
}

// Models lists the tables owned by the ledger package
func Models() []interface{} {
	return []interface{}{&InventoryEvent{}, &IntegrityAlert{}}
}

// recordAlert stores one alert per broken position. An alert that was
// already raised, resolved or not, is not raised again.
func (s *Service) recordAlert(ctx context.Context, result *VerificationResult) error {
	key := result.Partition
	var seq int64
	if result.BrokenAtSequence != nil {
		seq = *result.BrokenAtSequence
	}

	var existing int64
	err := s.db.WithContext(ctx).Model(&IntegrityAlert{}).
		Where("tenant_id = ? AND catalog_item_id = ? AND location_id = ? AND broken_at_sequence = ?",
			key.TenantID, key.CatalogItemID, key.LocationID, seq).
		Count(&existing).Error
	if err != nil {
		return fmt.Errorf("failed to check integrity alerts: %w", err)
	}
	if existing > 0 {
		return nil
	}

	alert := &IntegrityAlert{
		ID:               uuid.New(),
		TenantID:         key.TenantID,
		CatalogItemID:    key.CatalogItemID,
		LocationID:       key.LocationID,
		BrokenAtEventID:  result.BrokenAtEventID,
		BrokenAtSequence: seq,
		Reason:           result.Reason,
		CreatedAt:        s.Now(),
	}
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to record integrity alert: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"alert_id":  alert.ID,
		"partition": key.String(),
		"sequence":  seq,
	}).Warn("Partition quarantined pending audit")

	return nil
}

// ensureTrusted refuses work on a partition with an unresolved alert
func (s *Service) ensureTrusted(ctx context.Context, key PartitionKey) error {
	var open int64
	err := s.db.WithContext(ctx).Model(&IntegrityAlert{}).
		Where("tenant_id = ? AND catalog_item_id = ? AND location_id = ? AND resolved = ?",
			key.TenantID, key.CatalogItemID, key.LocationID, false).
		Count(&open).Error
	if err != nil {
		return fmt.Errorf("failed to check partition quarantine: %w", err)
	}
	if open > 0 {
		return fmt.Errorf("%w: partition %s is quarantined", errs.ErrIntegrityViolation, key)
	}
	return nil
}

// ListAlerts returns the tenant's integrity alerts, newest first
func (s *Service) ListAlerts(ctx context.Context, tenantID string, includeResolved bool) ([]IntegrityAlert, error) {
	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if !includeResolved {
		query = query.Where("resolved = ?", false)
	}

	var alerts []IntegrityAlert
	if err := query.Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list integrity alerts: %w", err)
	}
	return alerts, nil
}

// ResolveAlert marks an alert as audited, lifting the quarantine once no
// other alert is open on the partition.
func (s *Service) ResolveAlert(ctx context.Context, tenantID string, alertID uuid.UUID, actorID string) (*IntegrityAlert, error) {
	var alert IntegrityAlert
	if err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, alertID).First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: integrity alert %s", errs.ErrNotFound, alertID)
		}
		return nil, fmt.Errorf("failed to load integrity alert: %w", err)
	}
	if alert.Resolved {
		return &alert, nil
	}

	now := s.Now()
	alert.Resolved = true
	alert.ResolvedBy = &actorID
	alert.ResolvedAt = &now

	err := s.db.WithContext(ctx).Model(&IntegrityAlert{}).
		Where("id = ?", alert.ID).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_by": actorID,
			"resolved_at": now,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve integrity alert: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"alert_id":  alert.ID,
		"partition": alert.Partition().String(),
		"actor_id":  actorID,
	}).Info("Integrity alert resolved")

	return &alert, nil
}

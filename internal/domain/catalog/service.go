// internal/domain/catalog/service.go
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service answers catalog lookups for the ledger
type Service struct {
	db *gorm.DB
}

// NewService creates a new catalog lookup service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get returns an active catalog item of the tenant
func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*CatalogItem, error) {
	return Find(s.db.WithContext(ctx), tenantID, id)
}

// Find loads an active catalog item using the given handle
func Find(db *gorm.DB, tenantID string, id uuid.UUID) (*CatalogItem, error) {
	var item CatalogItem
	err := db.Where("tenant_id = ? AND id = ? AND is_active = ?", tenantID, id, true).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: catalog item %s", errs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load catalog item: %w", err)
	}
	return &item, nil
}

// Upsert mirrors a catalog item into the local read model
func (s *Service) Upsert(ctx context.Context, item *CatalogItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sku", "name", "is_active", "updated_at"}),
	}).Create(item).Error
	if err != nil {
		return fmt.Errorf("failed to upsert catalog item: %w", err)
	}
	return nil
}

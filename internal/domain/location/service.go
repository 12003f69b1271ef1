// internal/domain/location/service.go
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"gorm.io/gorm"
)

// Service manages the location registry
type Service struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

// NewService creates a new location service
func NewService(db *gorm.DB, log logrus.FieldLogger) *Service {
	return &Service{
		db:  db,
		log: log,
	}
}

// CreateLocationRequest represents location creation data
type CreateLocationRequest struct {
	Code string       `json:"code" binding:"required,max=32"`
	Name string       `json:"name" binding:"required,max=100"`
	Type LocationType `json:"type" binding:"required"`
}

// Create registers a new location for a tenant
func (s *Service) Create(ctx context.Context, tenantID string, req *CreateLocationRequest) (*Location, error) {
	if !ValidType(req.Type) {
		return nil, fmt.Errorf("%w: unknown location type %q", errs.ErrValidation, req.Type)
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, fmt.Errorf("%w: location code is required", errs.ErrValidation)
	}

	// Check if code already exists
	var existing Location
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND code = ?", tenantID, code).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: location with code '%s' already exists", errs.ErrValidation, code)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check location code: %w", err)
	}

	location := &Location{
		ID:       uuid.New(),
		TenantID: tenantID,
		Code:     code,
		Name:     strings.TrimSpace(req.Name),
		Type:     req.Type,
		Status:   LocationStatusActive,
	}

	if err := s.db.WithContext(ctx).Create(location).Error; err != nil {
		return nil, fmt.Errorf("failed to create location: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"location_id": location.ID,
		"code":        code,
	}).Info("Location created")

	return location, nil
}

// Get loads a location of the tenant
func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Location, error) {
	return Find(s.db.WithContext(ctx), tenantID, id)
}

// Find loads a location using the given handle, which may be a transaction
func Find(db *gorm.DB, tenantID string, id uuid.UUID) (*Location, error) {
	var location Location
	if err := db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&location).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: location %s", errs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load location: %w", err)
	}
	return &location, nil
}

// List returns the tenant's locations, optionally filtered by status
func (s *Service) List(ctx context.Context, tenantID string, status LocationStatus) ([]Location, error) {
	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var locations []Location
	if err := query.Order("code ASC").Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve locations: %w", err)
	}
	return locations, nil
}

// SetStatus activates or soft-deactivates a location
func (s *Service) SetStatus(ctx context.Context, tenantID string, id uuid.UUID, status LocationStatus) (*Location, error) {
	if status != LocationStatusActive && status != LocationStatusInactive {
		return nil, fmt.Errorf("%w: unknown location status %q", errs.ErrValidation, status)
	}

	location, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if location.Status == status {
		return location, nil
	}

	location.Status = status
	if err := s.db.WithContext(ctx).Model(location).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("failed to update location status: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"location_id": id,
		"status":      status,
	}).Info("Location status changed")

	return location, nil
}

// internal/infrastructure/database/relational/migration.go
package relational

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/domain/catalog"
	"github.com/your-org/inventory-ledger/internal/domain/inventory"
	"github.com/your-org/inventory-ledger/internal/domain/location"
	"gorm.io/gorm"
)

// DevTenant owns the development seed data
const DevTenant = "dev-tenant"

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	driver string
	log    logrus.FieldLogger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, driver string, log logrus.FieldLogger) *Migration {
	return &Migration{
		db:     db,
		driver: driver,
		log:    log,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.log.Info("Running database auto-migrations")

	for _, model := range inventory.Models() {
		m.log.Debugf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.log.Info("Database auto-migrations completed")
	return nil
}

// CreateIndexes creates partial indexes the model tags cannot express. MySQL
// has no partial indexes and relies on the composite tag indexes instead.
func (m *Migration) CreateIndexes() error {
	if m.driver == "mysql" {
		return nil
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_inventory_allocations_live ON inventory_allocations(expires_at) WHERE status = 'reserved'",
		"CREATE INDEX IF NOT EXISTS idx_inventory_integrity_alerts_open ON inventory_integrity_alerts(tenant_id, catalog_item_id, location_id) WHERE resolved = false",
		"CREATE INDEX IF NOT EXISTS idx_lots_reservable ON lots(tenant_id, catalog_item_id, location_id, received_at) WHERE status = 'active'",
	}

	failed := 0
	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.log.WithError(err).Warn("Failed to create index")
			failed++
		}
	}

	m.log.WithFields(logrus.Fields{
		"created": len(indexes) - failed,
		"failed":  failed,
	}).Info("Additional indexes created")
	return nil
}

// ProtectEvents installs triggers rejecting UPDATE and DELETE on the event
// table, so only a schema owner can rewrite history.
func (m *Migration) ProtectEvents() error {
	var statements []string

	switch m.driver {
	case "postgres":
		statements = []string{
			`CREATE OR REPLACE FUNCTION inventory_events_immutable() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'inventory events are immutable';
END;
$$ LANGUAGE plpgsql`,
			"DROP TRIGGER IF EXISTS inventory_events_no_update ON inventory_events",
			"CREATE TRIGGER inventory_events_no_update BEFORE UPDATE OR DELETE ON inventory_events FOR EACH ROW EXECUTE FUNCTION inventory_events_immutable()",
		}
	case "sqlite":
		statements = []string{
			"CREATE TRIGGER IF NOT EXISTS inventory_events_no_update BEFORE UPDATE ON inventory_events BEGIN SELECT RAISE(ABORT, 'inventory events are immutable'); END",
			"CREATE TRIGGER IF NOT EXISTS inventory_events_no_delete BEFORE DELETE ON inventory_events BEGIN SELECT RAISE(ABORT, 'inventory events are immutable'); END",
		}
	default:
		m.log.WithField("driver", m.driver).Warn("Event immutability triggers not supported, relying on model hooks")
		return nil
	}

	for _, stmt := range statements {
		if err := m.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to install immutability trigger: %w", err)
		}
	}

	m.log.Info("Event immutability triggers installed")
	return nil
}

// Run applies migrations, indexes and triggers in order
func (m *Migration) Run() error {
	if err := m.RunAutoMigrations(); err != nil {
		return err
	}
	if err := m.CreateIndexes(); err != nil {
		return err
	}
	return m.ProtectEvents()
}

// SeedInitialData inserts a development location and catalog item
func (m *Migration) SeedInitialData() error {
	m.log.Info("Seeding initial data")

	var existing location.Location
	err := m.db.Where("tenant_id = ? AND code = ?", DevTenant, "WH-MAIN").First(&existing).Error
	switch {
	case err == nil:
		m.log.Debug("Development location already exists")
	case errors.Is(err, gorm.ErrRecordNotFound):
		warehouse := location.Location{
			ID:       uuid.New(),
			TenantID: DevTenant,
			Code:     "WH-MAIN",
			Name:     "Main warehouse",
			Type:     location.LocationTypeWarehouse,
			Status:   location.LocationStatusActive,
		}
		if err := m.db.Create(&warehouse).Error; err != nil {
			return fmt.Errorf("failed to seed location: %w", err)
		}
		m.log.WithField("location_id", warehouse.ID).Info("Created development location WH-MAIN")
	default:
		return fmt.Errorf("failed to check seed location: %w", err)
	}

	var items int64
	if err := m.db.Model(&catalog.CatalogItem{}).Where("tenant_id = ?", DevTenant).Count(&items).Error; err != nil {
		return fmt.Errorf("failed to count seed items: %w", err)
	}
	if items > 0 {
		m.log.Debug("Development catalog items already exist")
		return nil
	}

	for _, item := range []catalog.CatalogItem{
		{ID: uuid.New(), TenantID: DevTenant, SKU: "DEV-TSHIRT-M", Name: "T-shirt (M)", IsActive: true},
		{ID: uuid.New(), TenantID: DevTenant, SKU: "DEV-MUG", Name: "Coffee mug", IsActive: true},
	} {
		if err := m.db.Create(&item).Error; err != nil {
			return fmt.Errorf("failed to seed catalog item %s: %w", item.SKU, err)
		}
		m.log.WithFields(logrus.Fields{"sku": item.SKU, "catalog_item_id": item.ID}).Info("Created development catalog item")
	}

	return nil
}

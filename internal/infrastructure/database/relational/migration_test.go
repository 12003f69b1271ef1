package relational

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/inventory-ledger/internal/config"
	"github.com/your-org/inventory-ledger/internal/domain/catalog"
	"github.com/your-org/inventory-ledger/internal/domain/location"
	"github.com/your-org/inventory-ledger/internal/pkg/logger"
	"github.com/your-org/inventory-ledger/internal/pkg/testdb"
)

func TestMigration_RunIsRepeatable(t *testing.T) {
	db := testdb.Open(t)
	m := NewMigration(db, "sqlite", logger.Discard())

	require.NoError(t, m.Run())
	require.NoError(t, m.Run())

	assert.True(t, db.Migrator().HasTable("inventory_events"))
	assert.True(t, db.Migrator().HasIndex("inventory_allocations", "idx_inventory_allocations_live"))
}

func TestMigration_EventsAreWriteOnce(t *testing.T) {
	db := testdb.Open(t)
	require.NoError(t, NewMigration(db, "sqlite", logger.Discard()).Run())

	id := uuid.NewString()
	err := db.Exec(`INSERT INTO inventory_events
		(id, tenant_id, event_type, catalog_item_id, lot_id, location_id, quantity, unit_cost, currency,
		 value_delta, reference_type, reference_id, event_hash, sequence_number, actor_id, created_at)
		VALUES (?, 't', 'RECEIVE', ?, ?, ?, 1, 1, 'USD', 1, 'grn', 'GRN-1', 'h', 1, 'a', CURRENT_TIMESTAMP)`,
		id, uuid.NewString(), uuid.NewString(), uuid.NewString()).Error
	require.NoError(t, err)

	err = db.Exec("UPDATE inventory_events SET quantity = 2 WHERE id = ?", id).Error
	assert.ErrorContains(t, err, "immutable")

	err = db.Exec("DELETE FROM inventory_events WHERE id = ?", id).Error
	assert.ErrorContains(t, err, "immutable")
}

func TestMigration_SeedInitialData(t *testing.T) {
	db := testdb.Open(t)
	m := NewMigration(db, "sqlite", logger.Discard())
	require.NoError(t, m.Run())

	require.NoError(t, m.SeedInitialData())
	require.NoError(t, m.SeedInitialData())

	var locations, items int64
	require.NoError(t, db.Model(&location.Location{}).Where("tenant_id = ?", DevTenant).Count(&locations).Error)
	require.NoError(t, db.Model(&catalog.CatalogItem{}).Where("tenant_id = ?", DevTenant).Count(&items).Error)
	assert.Equal(t, int64(1), locations)
	assert.Equal(t, int64(2), items)
}

func TestDialector_RejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: "oracle"}}

	_, err := Dialector(cfg)

	assert.Error(t, err)
}

func TestDialector_KnownDrivers(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql", "sqlite"} {
		cfg := testdb.Config()
		cfg.Database.Driver = driver
		cfg.Database.SQLitePath = t.TempDir() + "/ledger.db"

		dialector, err := Dialector(cfg)
		require.NoError(t, err, driver)
		assert.NotNil(t, dialector, driver)
	}
}

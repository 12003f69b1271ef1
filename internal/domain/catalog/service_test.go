package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
	"github.com/your-org/inventory-ledger/internal/pkg/testdb"
)

func TestUpsert_MirrorsCatalogChanges(t *testing.T) {
	svc := NewService(testdb.Open(t, &CatalogItem{}))
	ctx := context.Background()

	item := &CatalogItem{TenantID: "tenant-a", SKU: "KETTLE", Name: "Kettle", IsActive: true}
	require.NoError(t, svc.Upsert(ctx, item))
	assert.NotEqual(t, uuid.Nil, item.ID)

	found, err := svc.Get(ctx, "tenant-a", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kettle", found.Name)

	require.NoError(t, svc.Upsert(ctx, &CatalogItem{ID: item.ID, TenantID: "tenant-a", SKU: "KETTLE", Name: "Kettle 1.7L", IsActive: true}))
	found, err = svc.Get(ctx, "tenant-a", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kettle 1.7L", found.Name)

	// retired items are invisible to the ledger
	require.NoError(t, svc.Upsert(ctx, &CatalogItem{ID: item.ID, TenantID: "tenant-a", SKU: "KETTLE", Name: "Kettle 1.7L", IsActive: false}))
	_, err = svc.Get(ctx, "tenant-a", item.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.Get(ctx, "tenant-b", item.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

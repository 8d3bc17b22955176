package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/familyhub-backend/pkg/db/dbtest"
)

func TestFindVariants(t *testing.T) {
	client := dbtest.Open(t)
	override := int64(1500)
	size := "M"
	priced := dbtest.SeedVariant(t, client, dbtest.VariantSeed{
		ProductName:    "Reunion Hoodie",
		BasePriceCents: 4000,
		ProductActive:  true,
		PriceCents:     &override,
		Size:           &size,
		Stock:          3,
		Active:         true,
	})
	retired := dbtest.SeedVariant(t, client, dbtest.VariantSeed{
		ProductName:    "Old Mug",
		BasePriceCents: 900,
		ProductActive:  false,
		Stock:          10,
		Active:         true,
	})
	missing := uuid.New()

	got, err := NewReader(client.DB()).FindVariants(context.Background(), []uuid.UUID{priced.ID, retired.ID, missing})
	require.NoError(t, err)
	require.Len(t, got, 2)

	hoodie := got[priced.ID]
	assert.Equal(t, "Reunion Hoodie", hoodie.ProductName)
	assert.Equal(t, int64(1500), hoodie.UnitPriceCents())
	assert.Equal(t, 3, hoodie.Stock)
	assert.True(t, hoodie.Purchasable())
	require.NotNil(t, hoodie.Size)
	assert.Equal(t, "M", *hoodie.Size)

	mug := got[retired.ID]
	assert.Equal(t, int64(900), mug.UnitPriceCents())
	assert.False(t, mug.ProductActive)
	assert.False(t, mug.Purchasable())

	_, ok := got[missing]
	assert.False(t, ok)
}

func TestFindVariantsEmpty(t *testing.T) {
	got, err := NewReader(nil).FindVariants(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/familyhub-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
)

func TestTryDecrement(t *testing.T) {
	client := dbtest.Open(t)
	variant := dbtest.SeedVariant(t, client, dbtest.VariantSeed{BasePriceCents: 2000, ProductActive: true, Stock: 5, Active: true})
	ledger := NewLedger(client.DB())
	ctx := context.Background()

	ok, err := ledger.TryDecrement(ctx, variant.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, dbtest.Stock(t, client, variant.ID))

	ok, err = ledger.TryDecrement(ctx, variant.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok, "short stock must not decrement")
	assert.Equal(t, 2, dbtest.Stock(t, client, variant.ID))

	ok, err = ledger.TryDecrement(ctx, variant.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, dbtest.Stock(t, client, variant.ID))
}

func TestTryDecrementUnknownVariant(t *testing.T) {
	client := dbtest.Open(t)
	ok, err := NewLedger(client.DB()).TryDecrement(context.Background(), uuid.New(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRejectsNonPositiveQuantity(t *testing.T) {
	client := dbtest.Open(t)
	variant := dbtest.SeedVariant(t, client, dbtest.VariantSeed{ProductActive: true, Stock: 1, Active: true})
	ledger := NewLedger(client.DB())

	for _, qty := range []int{0, -1} {
		_, err := ledger.TryDecrement(context.Background(), variant.ID, qty)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "qty %d: %v", qty, err)

		_, err = ledger.Restore(context.Background(), variant.ID, qty)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "qty %d: %v", qty, err)
	}
	assert.Equal(t, 1, dbtest.Stock(t, client, variant.ID))
}

func TestRestore(t *testing.T) {
	client := dbtest.Open(t)
	variant := dbtest.SeedVariant(t, client, dbtest.VariantSeed{ProductActive: true, Stock: 0, Active: true})
	ledger := NewLedger(client.DB())

	found, err := ledger.Restore(context.Background(), variant.ID, 4)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4, dbtest.Stock(t, client, variant.ID))

	found, err = ledger.Restore(context.Background(), uuid.New(), 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDecrementRollsBackWithTransaction(t *testing.T) {
	client := dbtest.Open(t)
	variant := dbtest.SeedVariant(t, client, dbtest.VariantSeed{ProductActive: true, Stock: 3, Active: true})
	ledger := NewLedger(client.DB())

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		ok, err := ledger.WithTx(tx).TryDecrement(context.Background(), variant.ID, 2)
		require.NoError(t, err)
		require.True(t, ok)
		return pkgerrors.New(pkgerrors.CodeStateConflict, "abort")
	})
	require.Error(t, err)
	assert.Equal(t, 3, dbtest.Stock(t, client, variant.ID))
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	client := dbtest.Open(t)
	variant := dbtest.SeedVariant(t, client, dbtest.VariantSeed{ProductActive: true, Stock: 7, Active: true})
	ledger := NewLedger(client.DB())

	var (
		mu   sync.Mutex
		wins int
	)
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			ok, err := ledger.TryDecrement(context.Background(), variant.ID, 1)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 7, wins)
	assert.Equal(t, 0, dbtest.Stock(t, client, variant.ID))
}

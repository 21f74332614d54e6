//go:build integration

package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockplus/stockplus/internal/platform/db/dbtest"
)

func TestRepositoryGetProduct(t *testing.T) {
	pool := dbtest.Open(t)
	dbtest.Reset(t, pool)
	ctx := context.Background()
	repo := NewRepository(pool)

	id := dbtest.InsertProduct(t, pool, 1, "SKU-1", "", 7, 2)
	large := dbtest.InsertVariant(t, pool, id, "Large", "12.50")
	bare := dbtest.InsertVariant(t, pool, id, "Bare", "")

	p, err := repo.GetProduct(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(1), p.CompanyID)
	require.Equal(t, 7, p.Stock)
	require.False(t, p.Price.Valid)
	require.Len(t, p.Variants, 2)

	_, err = p.PriceFor(nil)
	require.ErrorIs(t, err, ErrPriceUnavailable)
	price, err := p.PriceFor(&large)
	require.NoError(t, err)
	require.Equal(t, "12.5", price.String())
	_, err = p.PriceFor(&bare)
	require.ErrorIs(t, err, ErrPriceUnavailable)

	_, err = repo.GetProduct(ctx, id+100)
	require.ErrorIs(t, err, ErrProductNotFound)
}

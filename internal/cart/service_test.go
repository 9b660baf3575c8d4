package cart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/storage/memory"
)

type fixture struct {
	store   *memory.Store
	service cart.Service
	userID  uuid.UUID
	a, b    *catalog.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	products := catalog.NewService(store, nil)

	a, err := products.CreateProduct(ctx, &catalog.Product{Name: "Product A", Price: decimal.RequireFromString("50.00"), Stock: 10})
	require.NoError(t, err)
	sale := decimal.RequireFromString("25.00")
	b, err := products.CreateProduct(ctx, &catalog.Product{Name: "Product B", Price: decimal.RequireFromString("40.00"), SalePrice: &sale, Stock: 10})
	require.NoError(t, err)

	return &fixture{
		store:   store,
		service: cart.NewService(store, store),
		userID:  uuid.Must(uuid.NewV4()),
		a:       a,
		b:       b,
	}
}

func TestService_GetCart_Totals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.AddItem(ctx, f.userID, f.a.ID, 2)
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, f.userID, f.b.ID, 1)
	require.NoError(t, err)

	c, err := f.service.GetCart(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, c.Items, 2)
	assert.Equal(t, 3, c.ItemCount)
	assert.Equal(t, "125.00", c.Total.StringFixed(2))

	subtotals := make(map[uuid.UUID]string, len(c.Items))
	for _, line := range c.Items {
		subtotals[line.ProductID] = line.Subtotal().StringFixed(2)
	}
	assert.Equal(t, "100.00", subtotals[f.a.ID])
	assert.Equal(t, "25.00", subtotals[f.b.ID])
}

func TestService_GetCart_Empty(t *testing.T) {
	f := newFixture(t)

	c, err := f.service.GetCart(context.Background(), uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Equal(t, 0, c.ItemCount)
	assert.True(t, c.Total.IsZero())
}

func TestService_AddItem(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		quantity  int
		product   func(f *fixture) uuid.UUID
		wantQty   int
		wantErr   bool
		wantErrIs error
	}{
		{name: "explicit quantity", quantity: 3, product: func(f *fixture) uuid.UUID { return f.a.ID }, wantQty: 3},
		{name: "zero defaults to one", quantity: 0, product: func(f *fixture) uuid.UUID { return f.a.ID }, wantQty: 1},
		{name: "negative quantity", quantity: -2, product: func(f *fixture) uuid.UUID { return f.a.ID }, wantErr: true, wantErrIs: apperr.ErrValidation},
		{name: "unknown product", quantity: 1, product: func(*fixture) uuid.UUID { return uuid.Must(uuid.NewV4()) }, wantErr: true, wantErrIs: catalog.ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			item, err := f.service.AddItem(ctx, f.userID, tt.product(f), tt.quantity)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErrIs))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQty, item.Quantity)
		})
	}
}

func TestService_AddItem_IncrementsExistingLine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.service.AddItem(ctx, f.userID, f.a.ID, 2)
	require.NoError(t, err)
	second, err := f.service.AddItem(ctx, f.userID, f.a.ID, 3)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)

	c, err := f.service.GetCart(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
}

func TestService_UpdateQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	item, err := f.service.AddItem(ctx, f.userID, f.a.ID, 2)
	require.NoError(t, err)

	updated, removed, err := f.service.UpdateQuantity(ctx, item.ID, 7)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 7, updated.Quantity)

	_, removed, err = f.service.UpdateQuantity(ctx, item.ID, 0)
	require.NoError(t, err)
	assert.True(t, removed)

	c, err := f.service.GetCart(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	_, _, err = f.service.UpdateQuantity(ctx, item.ID, 1)
	assert.True(t, errors.Is(err, cart.ErrCartItemNotFound))
}

func TestService_RemoveItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	item, err := f.service.AddItem(ctx, f.userID, f.a.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.service.RemoveItem(ctx, item.ID))
	err = f.service.RemoveItem(ctx, item.ID)
	assert.True(t, errors.Is(err, cart.ErrCartItemNotFound))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestService_Clear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := uuid.Must(uuid.NewV4())

	_, err := f.service.AddItem(ctx, f.userID, f.a.ID, 1)
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, other, f.b.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.service.Clear(ctx, f.userID))
	require.NoError(t, f.service.Clear(ctx, f.userID), "clearing an empty cart succeeds")

	c, err := f.service.GetCart(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	c, err = f.service.GetCart(ctx, other)
	require.NoError(t, err)
	assert.Len(t, c.Items, 1, "other carts are untouched")
}

func TestService_GetCart_LivePrices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.AddItem(ctx, f.userID, f.a.ID, 2)
	require.NoError(t, err)

	updated := *f.a
	updated.Price = decimal.RequireFromString("60.00")
	_, err = catalog.NewService(f.store, nil).UpdateProduct(ctx, &updated)
	require.NoError(t, err)

	c, err := f.service.GetCart(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, "120.00", c.Total.StringFixed(2))
}

func TestService_DeletedProductLeavesCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.AddItem(ctx, f.userID, f.a.ID, 1)
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, f.userID, f.b.ID, 1)
	require.NoError(t, err)

	require.NoError(t, catalog.NewService(f.store, nil).DeleteProduct(ctx, f.a.ID))

	c, err := f.service.GetCart(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, f.b.ID, c.Items[0].ProductID)
	assert.Equal(t, "25.00", c.Total.StringFixed(2))
}

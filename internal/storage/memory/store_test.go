package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/storage/memory"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

func newID() uuid.UUID {
	return uuid.Must(uuid.NewV4())
}

func addProduct(t *testing.T, s *memory.Store, price string, stock int) *catalog.Product {
	t.Helper()
	p := &catalog.Product{
		ID:        newID(),
		Name:      "Product " + price,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func newOrder(productID uuid.UUID, qty int, price string) *order.Order {
	id := newID()
	unit := decimal.RequireFromString(price)
	now := time.Now().UTC()
	return &order.Order{
		ID:              id,
		Status:          order.StatusPending,
		ShippingAddress: "1 Main St",
		Total:           unit.Mul(decimal.NewFromInt(int64(qty))),
		Items:           []order.Item{{ID: newID(), OrderID: id, ProductID: productID, Quantity: qty, Price: unit}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestStore_ProductCategory(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	books := &catalog.Category{ID: newID(), Name: "Books", Slug: "books"}
	require.NoError(t, s.CreateCategory(ctx, books))
	assert.True(t, errors.Is(s.CreateCategory(ctx, &catalog.Category{ID: newID(), Name: "Other", Slug: "books"}), catalog.ErrCategoryExists))

	p := &catalog.Product{ID: newID(), Name: "Go book", Price: decimal.RequireFromString("49.99"), CategoryID: uuid.NullUUID{UUID: books.ID, Valid: true}}
	require.NoError(t, s.CreateProduct(ctx, p))

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Category)
	assert.Equal(t, "books", got.Category.Slug)

	bad := &catalog.Product{ID: newID(), Name: "Orphan", Price: decimal.NewFromInt(1), CategoryID: uuid.NullUUID{UUID: newID(), Valid: true}}
	assert.True(t, errors.Is(s.CreateProduct(ctx, bad), catalog.ErrCategoryNotFound))
}

func TestStore_ListProductsPagination(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for _, price := range []string{"10", "20", "30", "40", "50"} {
		addProduct(t, s, price, 1)
	}

	page, err := s.ListProducts(ctx, catalog.ProductFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = s.ListProducts(ctx, catalog.ProductFilter{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)

	minPrice := decimal.RequireFromString("25")
	page, err = s.ListProducts(ctx, catalog.ProductFilter{Limit: 10, MinPrice: &minPrice})
	require.NoError(t, err)
	assert.Len(t, page, 3)
}

func TestStore_DeleteProductCascadesCart(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := addProduct(t, s, "10", 5)
	userID := newID()

	require.NoError(t, s.UpsertCartItem(ctx, &cart.CartItem{ID: newID(), UserID: userID, ProductID: p.ID, Quantity: 1}))
	require.NoError(t, s.DeleteProduct(ctx, p.ID))

	items, err := s.ListCartItems(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.True(t, errors.Is(s.DeleteProduct(ctx, p.ID), catalog.ErrProductNotFound))
}

func TestStore_UpsertCartItem(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := addProduct(t, s, "10", 5)
	userID := newID()

	first := &cart.CartItem{ID: newID(), UserID: userID, ProductID: p.ID, Quantity: 2}
	require.NoError(t, s.UpsertCartItem(ctx, first))
	second := &cart.CartItem{ID: newID(), UserID: userID, ProductID: p.ID, Quantity: 3}
	require.NoError(t, s.UpsertCartItem(ctx, second))

	assert.Equal(t, first.ID, second.ID, "the existing row is reused")
	assert.Equal(t, 5, second.Quantity)

	err := s.UpsertCartItem(ctx, &cart.CartItem{ID: newID(), UserID: userID, ProductID: newID(), Quantity: 1})
	assert.True(t, errors.Is(err, catalog.ErrProductNotFound))
}

func TestStore_CreateOrderReservesStock(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := addProduct(t, s, "10", 3)

	require.NoError(t, s.CreateOrder(ctx, newOrder(p.ID, 2, "10")))
	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)

	err = s.CreateOrder(ctx, newOrder(p.ID, 2, "10"))
	assert.True(t, errors.Is(err, order.ErrInsufficientStock))

	orders, err := s.ListOrders(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestStore_ConcurrentOrdersForLastUnit(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := addProduct(t, s, "10", 1)

	const buyers = 8
	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.CreateOrder(ctx, newOrder(p.ID, 1, "10"))
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, order.ErrInsufficientStock))
	}
	assert.Equal(t, 1, succeeded, "exactly one buyer gets the last unit")

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestStore_UpdateOrderStatusCAS(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := addProduct(t, s, "10", 3)
	o := newOrder(p.ID, 1, "10")
	require.NoError(t, s.CreateOrder(ctx, o))

	require.NoError(t, s.UpdateOrderStatus(ctx, o.ID, order.StatusPending, order.StatusPaid))
	err := s.UpdateOrderStatus(ctx, o.ID, order.StatusPending, order.StatusPaymentFailed)
	assert.True(t, errors.Is(err, order.ErrStatusConflict))
	assert.True(t, errors.Is(s.UpdateOrderStatus(ctx, newID(), order.StatusPending, order.StatusPaid), order.ErrOrderNotFound))
}

func TestStore_Payments(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := addProduct(t, s, "10", 3)
	o := newOrder(p.ID, 1, "10")
	require.NoError(t, s.CreateOrder(ctx, o))

	base := time.Now().UTC()
	first := &payment.Payment{ID: newID(), OrderID: o.ID, IntentID: "pi_1", Amount: o.Total, Status: payment.StatusPending, CreatedAt: base}
	require.NoError(t, s.CreatePayment(ctx, first))

	dup := &payment.Payment{ID: newID(), OrderID: o.ID, IntentID: "pi_2", Amount: o.Total, Status: payment.StatusPending, CreatedAt: base.Add(time.Second)}
	assert.True(t, errors.Is(s.CreatePayment(ctx, dup), payment.ErrActivePaymentExists))

	require.NoError(t, s.UpdatePaymentStatus(ctx, first.ID, payment.StatusFailed))
	assert.True(t, errors.Is(s.UpdatePaymentStatus(ctx, first.ID, payment.StatusCompleted), payment.ErrInvalidStatusChange))
	require.NoError(t, s.CreatePayment(ctx, dup))

	latest, err := s.GetPaymentByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_2", latest.IntentID)

	stale, err := s.ListPendingPayments(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, dup.ID, stale[0].ID)

	applied, err := s.SettlePayment(ctx, payment.Settlement{OrderID: o.ID, PaymentID: dup.ID, PaymentStatus: payment.StatusCompleted})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.SettlePayment(ctx, payment.Settlement{OrderID: o.ID, PaymentID: dup.ID, PaymentStatus: payment.StatusFailed})
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)

	settled, err := s.GetPaymentByID(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, settled.Status)

	assert.True(t, errors.Is(s.CreatePayment(ctx, &payment.Payment{ID: newID(), OrderID: newID(), Status: payment.StatusPending}), order.ErrOrderNotFound))
}

func stockOf(t *testing.T, s *memory.Store, id uuid.UUID) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestStore_SettlePaymentFailureReleasesStock(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := addProduct(t, s, "10", 10)
	o := newOrder(p.ID, 2, "10")
	require.NoError(t, s.CreateOrder(ctx, o))
	assert.Equal(t, 8, stockOf(t, s, p.ID))

	pay := &payment.Payment{ID: newID(), OrderID: o.ID, IntentID: "pi_1", Amount: o.Total, Status: payment.StatusPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePayment(ctx, pay))

	applied, err := s.SettlePayment(ctx, payment.Settlement{OrderID: o.ID, PaymentID: pay.ID, PaymentStatus: payment.StatusFailed})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 10, stockOf(t, s, p.ID))

	applied, err = s.SettlePayment(ctx, payment.Settlement{OrderID: o.ID, PaymentID: pay.ID, PaymentStatus: payment.StatusFailed})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 10, stockOf(t, s, p.ID), "stock is released once")

	got, err := s.GetPaymentByID(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, got.Status)
}

func TestStore_SettlePaymentClosesOtherPendingPayments(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := addProduct(t, s, "10", 10)
	o := newOrder(p.ID, 2, "10")
	require.NoError(t, s.CreateOrder(ctx, o))

	pay := &payment.Payment{ID: newID(), OrderID: o.ID, IntentID: "pi_1", Amount: o.Total, Status: payment.StatusPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePayment(ctx, pay))

	// Paid through an intent that has no payment row.
	applied, err := s.SettlePayment(ctx, payment.Settlement{OrderID: o.ID, PaymentStatus: payment.StatusCompleted})
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.GetPaymentByID(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, got.Status)
	assert.Equal(t, 8, stockOf(t, s, p.ID), "a paid order keeps its stock")

	stale, err := s.ListPendingPayments(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestStore_UnpaidOrders(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := addProduct(t, s, "10", 10)

	unpaid := newOrder(p.ID, 2, "10")
	require.NoError(t, s.CreateOrder(ctx, unpaid))
	withPayment := newOrder(p.ID, 1, "10")
	require.NoError(t, s.CreateOrder(ctx, withPayment))
	pay := &payment.Payment{ID: newID(), OrderID: withPayment.ID, IntentID: "pi_1", Amount: withPayment.Total, Status: payment.StatusPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePayment(ctx, pay))

	ids, err := s.ListUnpaidOrders(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{unpaid.ID}, ids)

	ids, err = s.ListUnpaidOrders(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	applied, err := s.SettlePayment(ctx, payment.Settlement{OrderID: withPayment.ID, PaymentStatus: payment.StatusFailed, Unpaid: true})
	require.NoError(t, err)
	assert.False(t, applied, "an order with a payment is left to the payment sweep")

	applied, err = s.SettlePayment(ctx, payment.Settlement{OrderID: unpaid.ID, PaymentStatus: payment.StatusFailed, Unpaid: true})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 9, stockOf(t, s, p.ID))
}

func TestStore_UpdateOrderStatusReleasesStock(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := addProduct(t, s, "10", 5)
	o := newOrder(p.ID, 3, "10")
	require.NoError(t, s.CreateOrder(ctx, o))
	require.NoError(t, s.DeleteProduct(ctx, p.ID))

	kept := addProduct(t, s, "10", 5)
	other := newOrder(kept.ID, 3, "10")
	require.NoError(t, s.CreateOrder(ctx, other))

	require.NoError(t, s.UpdateOrderStatus(ctx, o.ID, order.StatusPending, order.StatusPaymentFailed))
	require.NoError(t, s.UpdateOrderStatus(ctx, other.ID, order.StatusPending, order.StatusPaymentFailed))
	assert.Equal(t, 5, stockOf(t, s, kept.ID))
}

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	u := &user.User{ID: newID(), Username: "ada", Email: "ada@example.com"}
	id, err := s.CreateUser(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)

	_, err = s.CreateUser(ctx, &user.User{ID: newID(), Username: "ada2", Email: "ADA@example.com"})
	assert.True(t, errors.Is(err, user.ErrEmailExists))

	got, err := s.GetUserByEmail(ctx, "Ada@Example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUserByID(ctx, newID())
	assert.True(t, errors.Is(err, user.ErrUserNotFound))
}

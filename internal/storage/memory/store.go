// Package memory is an in-process storage backend. Store implements every
// repository interface of the domain packages and guards all state with a
// single mutex, so multi-entity writes (order creation with stock
// reservation, payment settlement) are atomic just like their postgres
// transactions.
package memory

import (
	"bytes"
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

type Store struct {
	mu sync.Mutex

	categories map[uuid.UUID]catalog.Category
	products   map[uuid.UUID]catalog.Product
	cartItems  map[uuid.UUID]cart.CartItem
	orders     map[uuid.UUID]order.Order
	payments   map[uuid.UUID]payment.Payment
	users      map[uuid.UUID]user.User

	now func() time.Time
}

var (
	_ catalog.Repository = (*Store)(nil)
	_ cart.Repository    = (*Store)(nil)
	_ order.Repository   = (*Store)(nil)
	_ payment.Repository = (*Store)(nil)
	_ user.Repository    = (*Store)(nil)
)

func New() *Store {
	return &Store{
		categories: make(map[uuid.UUID]catalog.Category),
		products:   make(map[uuid.UUID]catalog.Product),
		cartItems:  make(map[uuid.UUID]cart.CartItem),
		orders:     make(map[uuid.UUID]order.Order),
		payments:   make(map[uuid.UUID]payment.Payment),
		users:      make(map[uuid.UUID]user.User),
		now:        time.Now,
	}
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a.Bytes(), b.Bytes())
}

// ---- catalog ----

// productView returns a detached copy of p with its category attached.
// Callers must hold s.mu.
func (s *Store) productView(p catalog.Product) catalog.Product {
	if p.SalePrice != nil {
		sale := *p.SalePrice
		p.SalePrice = &sale
	}
	p.Category = nil
	if p.CategoryID.Valid {
		if c, ok := s.categories[p.CategoryID.UUID]; ok {
			p.Category = &c
		}
	}
	return p
}

func (s *Store) ListProducts(_ context.Context, filter catalog.ProductFilter) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]catalog.Product, 0)
	for _, p := range s.products {
		if filter.Matches(&p) {
			matched = append(matched, s.productView(p))
		}
	}
	slices.SortFunc(matched, func(a, b catalog.Product) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})

	if filter.Offset >= len(matched) {
		return []catalog.Product{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *Store) GetProduct(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	view := s.productView(p)
	return &view, nil
}

func (s *Store) CreateProduct(_ context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CategoryID.Valid {
		if _, ok := s.categories[p.CategoryID.UUID]; !ok {
			return catalog.ErrCategoryNotFound
		}
	}
	stored := *p
	stored.Category = nil
	s.products[p.ID] = stored
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[p.ID]
	if !ok {
		return catalog.ErrProductNotFound
	}
	if p.CategoryID.Valid {
		if _, ok := s.categories[p.CategoryID.UUID]; !ok {
			return catalog.ErrCategoryNotFound
		}
	}
	stored := *p
	stored.Category = nil
	stored.CreatedAt = existing.CreatedAt
	s.products[p.ID] = stored
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return catalog.ErrProductNotFound
	}
	delete(s.products, id)
	for itemID, item := range s.cartItems {
		if item.ProductID == id {
			delete(s.cartItems, itemID)
		}
	}
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	categories := make([]catalog.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b catalog.Category) int { return cmp.Compare(a.Name, b.Name) })
	return categories, nil
}

func (s *Store) GetCategory(_ context.Context, id uuid.UUID) (*catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, catalog.ErrCategoryNotFound
	}
	return &c, nil
}

func (s *Store) CreateCategory(_ context.Context, c *catalog.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.Name == c.Name || existing.Slug == c.Slug {
			return catalog.ErrCategoryExists
		}
	}
	s.categories[c.ID] = *c
	return nil
}

// ---- cart ----

func (s *Store) ListCartItems(_ context.Context, userID uuid.UUID) ([]cart.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]cart.CartItem, 0)
	for _, item := range s.cartItems {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b cart.CartItem) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return items, nil
}

func (s *Store) GetCartItem(_ context.Context, id uuid.UUID) (*cart.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cartItems[id]
	if !ok {
		return nil, cart.ErrCartItemNotFound
	}
	return &item, nil
}

func (s *Store) UpsertCartItem(_ context.Context, item *cart.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[item.ProductID]; !ok {
		return catalog.ErrProductNotFound
	}
	for id, existing := range s.cartItems {
		if existing.UserID == item.UserID && existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			s.cartItems[id] = existing
			*item = existing
			return nil
		}
	}
	s.cartItems[item.ID] = *item
	return nil
}

func (s *Store) SetCartItemQuantity(_ context.Context, id uuid.UUID, quantity int) (*cart.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cartItems[id]
	if !ok {
		return nil, cart.ErrCartItemNotFound
	}
	item.Quantity = quantity
	s.cartItems[id] = item
	return &item, nil
}

func (s *Store) DeleteCartItem(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cartItems[id]; !ok {
		return cart.ErrCartItemNotFound
	}
	delete(s.cartItems, id)
	return nil
}

func (s *Store) ClearCart(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, item := range s.cartItems {
		if item.UserID == userID {
			delete(s.cartItems, id)
		}
	}
	return nil
}

// ---- orders ----

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	if o.Items == nil {
		o.Items = []order.Item{}
	}
	return o
}

func (s *Store) CreateOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range o.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			return catalog.ErrProductNotFound
		}
		if p.Stock < item.Quantity {
			return &order.StockError{ProductID: item.ProductID, Requested: item.Quantity}
		}
	}
	for _, item := range o.Items {
		p := s.products[item.ProductID]
		p.Stock -= item.Quantity
		s.products[item.ProductID] = p
	}
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Store) GetOrderByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *Store) ListOrders(_ context.Context, userID *uuid.UUID) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]order.Order, 0)
	for _, o := range s.orders {
		if userID != nil && (!o.UserID.Valid || o.UserID.UUID != *userID) {
			continue
		}
		orders = append(orders, cloneOrder(o))
	}
	slices.SortFunc(orders, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return orders, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id uuid.UUID, from, to order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = s.now().UTC()
	s.orders[id] = o
	if to == order.StatusPaymentFailed {
		s.releaseStock(o)
	}
	return nil
}

// releaseStock returns the quantities of o to its products; callers hold mu.
func (s *Store) releaseStock(o order.Order) {
	for _, item := range o.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			continue
		}
		p.Stock += item.Quantity
		s.products[item.ProductID] = p
	}
}

// ---- payments ----

func (s *Store) CreatePayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[p.OrderID]; !ok {
		return order.ErrOrderNotFound
	}
	if p.Status == payment.StatusPending {
		for _, existing := range s.payments {
			if existing.OrderID == p.OrderID && existing.Status == payment.StatusPending {
				return payment.ErrActivePaymentExists
			}
		}
	}
	s.payments[p.ID] = *p
	return nil
}

func (s *Store) GetPaymentByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return &p, nil
}

func (s *Store) GetPaymentByOrderID(_ context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *payment.Payment
	for _, p := range s.payments {
		if p.OrderID != orderID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) ||
			(p.CreatedAt.Equal(latest.CreatedAt) && compareIDs(p.ID, latest.ID) < 0) {
			latest = &p
		}
	}
	if latest == nil {
		return nil, payment.ErrPaymentNotFound
	}
	return latest, nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, id uuid.UUID, status payment.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return payment.ErrPaymentNotFound
	}
	if p.Status != payment.StatusPending {
		return payment.ErrInvalidStatusChange
	}
	p.Status = status
	p.UpdatedAt = s.now().UTC()
	s.payments[id] = p
	return nil
}

func (s *Store) SettlePayment(_ context.Context, st payment.Settlement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[st.OrderID]
	if !ok {
		return false, order.ErrOrderNotFound
	}
	if o.Status != order.StatusPending {
		return false, nil
	}
	if st.Unpaid && s.hasPayment(o.ID) {
		return false, nil
	}

	now := s.now().UTC()
	o.Status = st.PaymentStatus.OrderStatus()
	o.UpdatedAt = now
	s.orders[o.ID] = o

	for id, p := range s.payments {
		if p.OrderID != o.ID || p.Status != payment.StatusPending {
			continue
		}
		p.Status = payment.StatusFailed
		if id == st.PaymentID {
			p.Status = st.PaymentStatus
		}
		p.UpdatedAt = now
		s.payments[id] = p
	}

	if st.PaymentStatus == payment.StatusFailed {
		s.releaseStock(o)
	}
	return true, nil
}

func (s *Store) hasPayment(orderID uuid.UUID) bool {
	for _, p := range s.payments {
		if p.OrderID == orderID {
			return true
		}
	}
	return false
}

func (s *Store) ListPendingPayments(_ context.Context, createdBefore time.Time, limit int) ([]payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]payment.Payment, 0)
	for _, p := range s.payments {
		if p.Status == payment.StatusPending && p.CreatedAt.Before(createdBefore) {
			pending = append(pending, p)
		}
	}
	slices.SortFunc(pending, func(a, b payment.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) ListUnpaidOrders(_ context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unpaid := make([]order.Order, 0)
	for _, o := range s.orders {
		if o.Status == order.StatusPending && o.CreatedAt.Before(createdBefore) && !s.hasPayment(o.ID) {
			unpaid = append(unpaid, o)
		}
	}
	slices.SortFunc(unpaid, func(a, b order.Order) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(unpaid) > limit {
		unpaid = unpaid[:limit]
	}

	ids := make([]uuid.UUID, 0, len(unpaid))
	for _, o := range unpaid {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// ---- users ----

func (s *Store) CreateUser(_ context.Context, u *user.User) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return uuid.Nil, user.ErrEmailExists
		}
	}
	s.users[u.ID] = *u
	return u.ID, nil
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, user.ErrUserNotFound
}

package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

// ProductLookup resolves live catalog products; catalog.Repository satisfies it.
type ProductLookup interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
}

type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, userID *uuid.UUID) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) (*Order, error)
	// InvalidateProducts drops the cached products of an order after its
	// stock changed outside this service.
	InvalidateProducts(ctx context.Context, orderID uuid.UUID)
}

type service struct {
	orderRepo Repository
	products  ProductLookup
	cache     catalog.ProductCache
	now       func() time.Time
}

// NewService wires the order service. cache holds the catalog's cached
// products, whose stock goes stale once an order reserves or releases it; nil
// disables invalidation.
func NewService(orderRepo Repository, products ProductLookup, cache catalog.ProductCache) Service {
	if cache == nil {
		cache = catalog.NoopProductCache()
	}
	return &service{
		orderRepo: orderRepo,
		products:  products,
		cache:     cache,
		now:       time.Now,
	}
}

// CreateOrder snapshots the effective catalog price of every line and
// persists the order as pending. Prices sent by clients are never used.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if len(input.Items) == 0 {
		log.Warn().Msg("service: attempt to create order with no items")
		return nil, ErrEmptyOrder
	}

	address := strings.TrimSpace(input.ShippingAddress)
	if address == "" {
		return nil, apperr.Validation("shipping address is required")
	}

	lines, err := mergeLines(input.Items)
	if err != nil {
		return nil, err
	}

	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate order id: %w", err)
	}

	now := s.now().UTC()
	o := &Order{
		ID:              orderID,
		UserID:          input.UserID,
		Status:          StatusPending,
		ShippingAddress: address,
		Items:           make([]Item, 0, len(lines)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, line := range lines {
		product, err := s.products.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				log.Warn().Stringer("product_id", line.ProductID).Msg("service: order references unknown product")
				return nil, catalog.ErrProductNotFound
			}
			return nil, fmt.Errorf("service: failed to fetch product %s: %w", line.ProductID, err)
		}
		if product.Stock < line.Quantity {
			return nil, &StockError{ProductID: line.ProductID, Requested: line.Quantity}
		}

		itemID, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("service: failed to generate order item id: %w", err)
		}
		o.Items = append(o.Items, Item{
			ID:        itemID,
			OrderID:   orderID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     product.EffectivePrice(),
		})
	}
	o.Total = o.ItemsTotal()

	if err := o.Validate(); err != nil {
		return nil, err
	}

	if err := s.orderRepo.CreateOrder(ctx, o); err != nil {
		if errors.Is(err, ErrInsufficientStock) || errors.Is(err, catalog.ErrProductNotFound) {
			return nil, err
		}
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}
	s.invalidate(ctx, o)

	log.Info().
		Stringer("order_id", o.ID).
		Str("total", o.Total.StringFixed(2)).
		Bool("guest", !o.UserID.Valid).
		Msg("service: order created")
	return o, nil
}

// mergeLines folds duplicate products into one line, keeping first-seen order.
func mergeLines(items []LineInput) ([]LineInput, error) {
	merged := make([]LineInput, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, apperr.Validation("order item product id is required")
		}
		if item.Quantity < 1 {
			return nil, apperr.Validation("order item quantity for product %s must be at least 1", item.ProductID)
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return o, nil
}

func (s *service) ListOrders(ctx context.Context, userID *uuid.UUID) ([]Order, error) {
	orders, err := s.orderRepo.ListOrders(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders in repository")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) (*Order, error) {
	if !newStatus.Valid() {
		return nil, apperr.Validation("unknown order status %q", newStatus)
	}

	current, err := s.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if current.Status == newStatus {
		log.Info().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: order status is already the same, no update needed")
		return current, nil
	}

	if !CanTransition(current.Status, newStatus) {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("current_status", current.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, newStatus)
	}

	if err := s.orderRepo.UpdateOrderStatus(ctx, orderID, current.Status, newStatus); err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrStatusConflict) {
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: failed to update order status in repository")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Stringer("old_status", current.Status).Stringer("new_status", newStatus).Msg("service: order status updated")
	if newStatus == StatusPaymentFailed {
		s.invalidate(ctx, current)
	}
	current.Status = newStatus
	current.UpdatedAt = s.now().UTC()
	return current, nil
}

func (s *service) InvalidateProducts(ctx context.Context, orderID uuid.UUID) {
	o, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Msg("service: failed to load order for cache invalidation")
		return
	}
	s.invalidate(ctx, o)
}

func (s *service) invalidate(ctx context.Context, o *Order) {
	for _, item := range o.Items {
		if err := s.cache.Delete(ctx, item.ProductID); err != nil {
			log.Warn().Err(err).Stringer("product_id", item.ProductID).Msg("service: failed to invalidate cached product")
		}
	}
}

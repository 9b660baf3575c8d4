package cart

import (
	"context"
	"errors"
	"fmt"
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
	GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartItem, error)
	// UpdateQuantity overwrites the quantity; a quantity <= 0 removes the
	// item and reports removed=true.
	UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (item *CartItem, removed bool, err error)
	RemoveItem(ctx context.Context, itemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo     Repository
	products ProductLookup
	now      func() time.Time
}

func NewService(repo Repository, products ProductLookup) Service {
	return &service{repo: repo, products: products, now: time.Now}
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	items, err := s.repo.ListCartItems(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to list cart items in repository")
		return nil, fmt.Errorf("service: failed to fetch cart: %w", err)
	}

	lines := make([]Line, 0, len(items))
	for _, item := range items {
		product, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				log.Warn().Stringer("cart_item_id", item.ID).Stringer("product_id", item.ProductID).Msg("service: cart item references missing product, skipping")
				continue
			}
			return nil, fmt.Errorf("service: failed to fetch product %s for cart: %w", item.ProductID, err)
		}
		lines = append(lines, Line{CartItem: item, Product: *product})
	}

	return &Cart{UserID: userID, Items: lines, Totals: ComputeTotals(lines)}, nil
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartItem, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user id is required")
	}
	if quantity == 0 {
		quantity = DefaultQuantity
	}
	if quantity < 0 {
		return nil, apperr.Validation("quantity must be at least 1, got %d", quantity)
	}

	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch product %s: %w", productID, err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate cart item id: %w", err)
	}
	item := &CartItem{
		ID:        id,
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.UpsertCartItem(ctx, item); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Stringer("product_id", productID).Msg("service: failed to upsert cart item in repository")
		return nil, fmt.Errorf("service: failed to add cart item: %w", err)
	}

	log.Info().Stringer("user_id", userID).Stringer("product_id", productID).Int("quantity", item.Quantity).Msg("service: cart item added")
	return item, nil
}

func (s *service) UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (*CartItem, bool, error) {
	if quantity <= 0 {
		if err := s.RemoveItem(ctx, itemID); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	item, err := s.repo.SetCartItemQuantity(ctx, itemID, quantity)
	if err != nil {
		if errors.Is(err, ErrCartItemNotFound) {
			return nil, false, ErrCartItemNotFound
		}
		log.Error().Err(err).Stringer("cart_item_id", itemID).Msg("service: failed to update cart item in repository")
		return nil, false, fmt.Errorf("service: failed to update cart item: %w", err)
	}
	return item, false, nil
}

func (s *service) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	if err := s.repo.DeleteCartItem(ctx, itemID); err != nil {
		if errors.Is(err, ErrCartItemNotFound) {
			log.Warn().Stringer("cart_item_id", itemID).Msg("service: cart item already absent")
			return ErrCartItemNotFound
		}
		log.Error().Err(err).Stringer("cart_item_id", itemID).Msg("service: failed to delete cart item in repository")
		return fmt.Errorf("service: failed to remove cart item: %w", err)
	}
	return nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.ClearCart(ctx, userID); err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to clear cart in repository")
		return fmt.Errorf("service: failed to clear cart: %w", err)
	}
	log.Info().Stringer("user_id", userID).Msg("service: cart cleared")
	return nil
}

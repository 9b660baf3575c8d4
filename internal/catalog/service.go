package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type Service interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	CreateProduct(ctx context.Context, product *Product) (*Product, error)
	UpdateProduct(ctx context.Context, product *Product) (*Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error

	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, category *Category) (*Category, error)
}

type service struct {
	repo  Repository
	cache ProductCache
	now   func() time.Time
}

func NewService(repo Repository, cache ProductCache) Service {
	if cache == nil {
		cache = NoopProductCache()
	}
	return &service{repo: repo, cache: cache, now: time.Now}
}

func (s *service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}

	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list products in repository")
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}
	return products, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		log.Warn().Err(err).Stringer("product_id", id).Msg("service: product cache read failed, falling back to repository")
	}
	if cached != nil {
		return cached, nil
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to fetch product in repository")
		return nil, fmt.Errorf("service: failed to fetch product: %w", err)
	}

	if err := s.cache.Set(ctx, product); err != nil {
		log.Warn().Err(err).Stringer("product_id", id).Msg("service: failed to cache product")
	}
	return product, nil
}

func (s *service) CreateProduct(ctx context.Context, product *Product) (*Product, error) {
	if err := product.Validate(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate product id: %w", err)
	}
	product.ID = id
	product.CreatedAt = s.now().UTC()
	product.Category = nil

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return nil, ErrCategoryNotFound
		}
		log.Error().Err(err).Msg("service: failed to create product in repository")
		return nil, fmt.Errorf("service: failed to create product: %w", err)
	}

	log.Info().Stringer("product_id", product.ID).Str("name", product.Name).Msg("service: product created")
	return s.repo.GetProduct(ctx, product.ID)
}

// UpdateProduct replaces every editable field of an existing product.
// Prices already frozen into orders are not affected.
func (s *service) UpdateProduct(ctx context.Context, product *Product) (*Product, error) {
	if err := product.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		if errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrCategoryNotFound) {
			return nil, err
		}
		log.Error().Err(err).Stringer("product_id", product.ID).Msg("service: failed to update product in repository")
		return nil, fmt.Errorf("service: failed to update product: %w", err)
	}
	s.invalidate(ctx, product.ID)

	log.Info().Stringer("product_id", product.ID).Msg("service: product updated")
	return s.repo.GetProduct(ctx, product.ID)
}

func (s *service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return ErrProductNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to delete product in repository")
		return fmt.Errorf("service: failed to delete product: %w", err)
	}
	s.invalidate(ctx, id)

	log.Info().Stringer("product_id", id).Msg("service: product deleted")
	return nil
}

func (s *service) invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, id); err != nil {
		log.Warn().Err(err).Stringer("product_id", id).Msg("service: failed to invalidate cached product")
	}
}

func (s *service) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list categories in repository")
		return nil, fmt.Errorf("service: failed to list categories: %w", err)
	}
	return categories, nil
}

func (s *service) CreateCategory(ctx context.Context, category *Category) (*Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	category.Slug = strings.TrimSpace(category.Slug)
	if category.Name == "" {
		return nil, apperr.Validation("category name is required")
	}
	if !slugPattern.MatchString(category.Slug) {
		return nil, apperr.Validation("category slug %q must be lowercase words separated by dashes", category.Slug)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate category id: %w", err)
	}
	category.ID = id

	if err := s.repo.CreateCategory(ctx, category); err != nil {
		if errors.Is(err, ErrCategoryExists) {
			return nil, ErrCategoryExists
		}
		log.Error().Err(err).Msg("service: failed to create category in repository")
		return nil, fmt.Errorf("service: failed to create category: %w", err)
	}

	log.Info().Stringer("category_id", category.ID).Str("slug", category.Slug).Msg("service: category created")
	return category, nil
}

package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/storage/memory"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListProducts(ctx context.Context, filter catalog.ProductFilter) ([]catalog.Product, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockRepository) GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockRepository) CreateProduct(ctx context.Context, product *catalog.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *MockRepository) UpdateProduct(ctx context.Context, product *catalog.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *MockRepository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Category), args.Error(1)
}

func (m *MockRepository) GetCategory(ctx context.Context, id uuid.UUID) (*catalog.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Category), args.Error(1)
}

func (m *MockRepository) CreateCategory(ctx context.Context, category *catalog.Category) error {
	return m.Called(ctx, category).Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, product *catalog.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *MockCache) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func TestService_GetProduct(t *testing.T) {
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	product := &catalog.Product{ID: id, Name: "Laptop", Price: dec("1299.99")}

	t.Run("cache hit skips repository", func(t *testing.T) {
		repo := new(MockRepository)
		cache := new(MockCache)
		cache.On("Get", mock.Anything, id).Return(product, nil).Once()

		got, err := catalog.NewService(repo, cache).GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, product, got)
		repo.AssertNotCalled(t, "GetProduct", mock.Anything, mock.Anything)
		cache.AssertExpectations(t)
	})

	t.Run("cache miss reads through", func(t *testing.T) {
		repo := new(MockRepository)
		cache := new(MockCache)
		cache.On("Get", mock.Anything, id).Return(nil, nil).Once()
		repo.On("GetProduct", mock.Anything, id).Return(product, nil).Once()
		cache.On("Set", mock.Anything, product).Return(nil).Once()

		got, err := catalog.NewService(repo, cache).GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, product, got)
		repo.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("cache failure falls back to repository", func(t *testing.T) {
		repo := new(MockRepository)
		cache := new(MockCache)
		cache.On("Get", mock.Anything, id).Return(nil, errors.New("connection refused")).Once()
		repo.On("GetProduct", mock.Anything, id).Return(product, nil).Once()
		cache.On("Set", mock.Anything, product).Return(errors.New("connection refused")).Once()

		got, err := catalog.NewService(repo, cache).GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, product, got)
	})

	t.Run("not found", func(t *testing.T) {
		repo := new(MockRepository)
		cache := new(MockCache)
		cache.On("Get", mock.Anything, id).Return(nil, nil).Once()
		repo.On("GetProduct", mock.Anything, id).Return(nil, catalog.ErrProductNotFound).Once()

		_, err := catalog.NewService(repo, cache).GetProduct(ctx, id)
		assert.True(t, errors.Is(err, catalog.ErrProductNotFound))
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
		cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
	})
}

func TestService_UpdateProduct_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	product := &catalog.Product{ID: id, Name: "Laptop", Price: dec("1199.99")}

	repo := new(MockRepository)
	cache := new(MockCache)
	repo.On("UpdateProduct", mock.Anything, product).Return(nil).Once()
	cache.On("Delete", mock.Anything, id).Return(nil).Once()
	repo.On("GetProduct", mock.Anything, id).Return(product, nil).Once()

	got, err := catalog.NewService(repo, cache).UpdateProduct(ctx, product)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(dec("1199.99")))
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestService_DeleteProduct(t *testing.T) {
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	tests := []struct {
		name      string
		repoErr   error
		wantErr   bool
		wantErrIs error
		wantEvict bool
	}{
		{name: "success", wantEvict: true},
		{name: "not found", repoErr: catalog.ErrProductNotFound, wantErr: true, wantErrIs: catalog.ErrProductNotFound},
		{name: "repository failure", repoErr: errors.New("db down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			cache := new(MockCache)
			repo.On("DeleteProduct", mock.Anything, id).Return(tt.repoErr).Once()
			cache.On("Delete", mock.Anything, id).Return(nil)

			err := catalog.NewService(repo, cache).DeleteProduct(ctx, id)
			if tt.wantErr {
				require.Error(t, err)
				if tt.wantErrIs != nil {
					assert.True(t, errors.Is(err, tt.wantErrIs))
				}
			} else {
				assert.NoError(t, err)
			}
			if tt.wantEvict {
				cache.AssertCalled(t, "Delete", mock.Anything, id)
			} else {
				cache.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestService_CreateProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid product never reaches repository", func(t *testing.T) {
		repo := new(MockRepository)
		_, err := catalog.NewService(repo, nil).CreateProduct(ctx, &catalog.Product{Name: "Free lunch"})
		assert.True(t, errors.Is(err, apperr.ErrValidation))
		repo.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
	})

	t.Run("assigns id and reloads", func(t *testing.T) {
		store := memory.New()
		got, err := catalog.NewService(store, nil).CreateProduct(ctx, &catalog.Product{Name: "Book", Price: dec("49.99")})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, got.ID)
		assert.False(t, got.CreatedAt.IsZero())

		stored, err := store.GetProduct(ctx, got.ID)
		require.NoError(t, err)
		assert.Equal(t, "Book", stored.Name)
	})

	t.Run("unknown category", func(t *testing.T) {
		missing := uuid.Must(uuid.NewV4())
		_, err := catalog.NewService(memory.New(), nil).CreateProduct(ctx, &catalog.Product{
			Name:       "Book",
			Price:      dec("49.99"),
			CategoryID: uuid.NullUUID{UUID: missing, Valid: true},
		})
		assert.True(t, errors.Is(err, catalog.ErrCategoryNotFound))
	})
}

func TestService_CreateCategory(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		input     catalog.Category
		repoErr   error
		wantErrIs error
	}{
		{name: "valid", input: catalog.Category{Name: "Home & Garden", Slug: "home-garden"}},
		{name: "bad slug", input: catalog.Category{Name: "Home", Slug: "Home Garden"}, wantErrIs: apperr.ErrValidation},
		{name: "missing name", input: catalog.Category{Slug: "books"}, wantErrIs: apperr.ErrValidation},
		{name: "duplicate", input: catalog.Category{Name: "Books", Slug: "books"}, repoErr: catalog.ErrCategoryExists, wantErrIs: catalog.ErrCategoryExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			repo.On("CreateCategory", mock.Anything, mock.AnythingOfType("*catalog.Category")).Return(tt.repoErr)

			input := tt.input
			got, err := catalog.NewService(repo, nil).CreateCategory(ctx, &input)
			if tt.wantErrIs != nil {
				assert.True(t, errors.Is(err, tt.wantErrIs))
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, got.ID)
			assert.Equal(t, "home-garden", got.Slug)
		})
	}
}

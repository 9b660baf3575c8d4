package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

var (
	ErrProductNotFound  = apperr.New(apperr.ErrNotFound, "product not found")
	ErrCategoryNotFound = apperr.New(apperr.ErrNotFound, "category not found")
	ErrCategoryExists   = apperr.New(apperr.ErrConflict, "category with this name or slug already exists")
)

type Repository interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	CreateProduct(ctx context.Context, product *Product) error
	UpdateProduct(ctx context.Context, product *Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error

	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*Category, error)
	CreateCategory(ctx context.Context, category *Category) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const productColumns = `
	p.id, p.name, p.description, p.image, p.price, p.sale_price, p.stock,
	p.rating, p.review_count, p.featured, p.category_id, p.created_at,
	c.id, c.name, c.slug`

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p            Product
		categoryID   uuid.NullUUID
		categoryName *string
		categorySlug *string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Image, &p.Price, &p.SalePrice, &p.Stock,
		&p.Rating, &p.ReviewCount, &p.Featured, &p.CategoryID, &p.CreatedAt,
		&categoryID, &categoryName, &categorySlug,
	)
	if err != nil {
		return nil, err
	}
	if categoryID.Valid {
		p.Category = &Category{ID: categoryID.UUID, Name: *categoryName, Slug: *categorySlug}
	}
	return &p, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *postgresRepository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE ($1::uuid IS NULL OR p.category_id = $1)
		  AND ($2::numeric IS NULL OR COALESCE(p.sale_price, p.price) >= $2)
		  AND ($3::numeric IS NULL OR COALESCE(p.sale_price, p.price) <= $3)
		  AND ($4 = '' OR p.name ILIKE $4 OR p.description ILIKE $4)
		  AND ($5::boolean IS NULL OR p.featured = $5)
		ORDER BY p.created_at, p.id
		LIMIT $6 OFFSET $7
	`

	search := ""
	if filter.Search != "" {
		search = "%" + escapeLike(filter.Search) + "%"
	}

	rows, err := r.db.Query(ctx, query,
		filter.CategoryID,
		filter.MinPrice,
		filter.MaxPrice,
		search,
		filter.Featured,
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating products: %w", err)
	}

	return products, nil
}

func (r *postgresRepository) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`

	p, err := scanProduct(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product %s: %w", id, err)
	}
	return p, nil
}

func (r *postgresRepository) CreateProduct(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO products (id, name, description, image, price, sale_price, stock,
			rating, review_count, featured, category_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.Name, p.Description, p.Image, p.Price, p.SalePrice, p.Stock,
		p.Rating, p.ReviewCount, p.Featured, p.CategoryID, p.CreatedAt,
	)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("repository: failed to insert product: %w", err)
	}
	return nil
}

func (r *postgresRepository) UpdateProduct(ctx context.Context, p *Product) error {
	query := `
		UPDATE products
		SET name = $2, description = $3, image = $4, price = $5, sale_price = $6,
			stock = $7, rating = $8, review_count = $9, featured = $10, category_id = $11
		WHERE id = $1
	`
	cmdTag, err := r.db.Exec(ctx, query,
		p.ID, p.Name, p.Description, p.Image, p.Price, p.SalePrice,
		p.Stock, p.Rating, p.ReviewCount, p.Featured, p.CategoryID,
	)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("repository: failed to update product %s: %w", p.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete product %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *postgresRepository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("repository: failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating categories: %w", err)
	}
	return categories, nil
}

func (r *postgresRepository) GetCategory(ctx context.Context, id uuid.UUID) (*Category, error) {
	var c Category
	err := r.db.QueryRow(ctx, `SELECT id, name, slug FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("repository: failed to select category %s: %w", id, err)
	}
	return &c, nil
}

func (r *postgresRepository) CreateCategory(ctx context.Context, c *Category) error {
	_, err := r.db.Exec(ctx, `INSERT INTO categories (id, name, slug) VALUES ($1, $2, $3)`, c.ID, c.Name, c.Slug)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrCategoryExists
		}
		return fmt.Errorf("repository: failed to insert category: %w", err)
	}
	return nil
}

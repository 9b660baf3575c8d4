package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

var ErrCartItemNotFound = apperr.New(apperr.ErrNotFound, "cart item not found")

type Repository interface {
	ListCartItems(ctx context.Context, userID uuid.UUID) ([]CartItem, error)
	GetCartItem(ctx context.Context, id uuid.UUID) (*CartItem, error)
	// UpsertCartItem inserts item or, when the (user, product) pair already
	// exists, adds item.Quantity to the stored row. item is overwritten with
	// the resulting row.
	UpsertCartItem(ctx context.Context, item *CartItem) error
	SetCartItemQuantity(ctx context.Context, id uuid.UUID, quantity int) (*CartItem, error)
	DeleteCartItem(ctx context.Context, id uuid.UUID) error
	ClearCart(ctx context.Context, userID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) ListCartItems(ctx context.Context, userID uuid.UUID) ([]CartItem, error) {
	query := `
		SELECT id, user_id, product_id, quantity, created_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart items for user %s: %w", userID, err)
	}
	defer rows.Close()

	items := make([]CartItem, 0)
	for rows.Next() {
		var item CartItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart item for user %s: %w", userID, err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart items for user %s: %w", userID, err)
	}
	return items, nil
}

func (r *postgresRepository) GetCartItem(ctx context.Context, id uuid.UUID) (*CartItem, error) {
	var item CartItem
	err := r.db.QueryRow(ctx, `SELECT id, user_id, product_id, quantity, created_at FROM cart_items WHERE id = $1`, id).
		Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to select cart item %s: %w", id, err)
	}
	return &item, nil
}

func (r *postgresRepository) UpsertCartItem(ctx context.Context, item *CartItem) error {
	query := `
		INSERT INTO cart_items (id, user_id, product_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, user_id, product_id, quantity, created_at
	`
	err := r.db.QueryRow(ctx, query, item.ID, item.UserID, item.ProductID, item.Quantity, item.CreatedAt).
		Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return catalog.ErrProductNotFound
		}
		return fmt.Errorf("repository: failed to upsert cart item: %w", err)
	}
	return nil
}

func (r *postgresRepository) SetCartItemQuantity(ctx context.Context, id uuid.UUID, quantity int) (*CartItem, error) {
	query := `
		UPDATE cart_items SET quantity = $2
		WHERE id = $1
		RETURNING id, user_id, product_id, quantity, created_at
	`
	var item CartItem
	err := r.db.QueryRow(ctx, query, id, quantity).
		Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to update cart item %s: %w", id, err)
	}
	return &item, nil
}

func (r *postgresRepository) DeleteCartItem(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart item %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *postgresRepository) ClearCart(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("repository: failed to clear cart for user %s: %w", userID, err)
	}
	return nil
}

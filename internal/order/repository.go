package order

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

var (
	ErrOrderNotFound           = apperr.New(apperr.ErrNotFound, "order not found")
	ErrEmptyOrder              = apperr.New(apperr.ErrValidation, "order must contain at least one item")
	ErrInsufficientStock       = apperr.New(apperr.ErrConflict, "insufficient stock")
	ErrInvalidStatusTransition = apperr.New(apperr.ErrValidation, "invalid order status transition")
	ErrStatusConflict          = apperr.New(apperr.ErrConflict, "order status was changed concurrently")
)

type Repository interface {
	// CreateOrder atomically reserves stock for every item, then inserts the
	// order and its items. Nothing is written when any item lacks stock.
	CreateOrder(ctx context.Context, order *Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// ListOrders returns orders newest first; a nil userID lists all orders.
	ListOrders(ctx context.Context, userID *uuid.UUID) ([]Order, error)
	// UpdateOrderStatus sets the status only if it still equals from. Moving
	// to payment_failed releases the order's stock in the same transaction.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to Status) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateOrder(ctx context.Context, o *Order) error {
	// Lock rows in a fixed order so concurrent checkouts cannot deadlock.
	reserve := slices.Clone(o.Items)
	slices.SortFunc(reserve, func(a, b Item) int { return slices.Compare(a.ProductID.Bytes(), b.ProductID.Bytes()) })

	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, item := range reserve {
			cmdTag, err := tx.Exec(ctx,
				`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
				item.ProductID, item.Quantity,
			)
			if err != nil {
				return fmt.Errorf("repository: failed to reserve stock for product %s: %w", item.ProductID, err)
			}
			if cmdTag.RowsAffected() == 1 {
				continue
			}

			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, item.ProductID).Scan(&exists); err != nil {
				return fmt.Errorf("repository: failed to check product %s: %w", item.ProductID, err)
			}
			if !exists {
				return catalog.ErrProductNotFound
			}
			log.Warn().Stringer("order_id_attempted", o.ID).Stringer("product_id", item.ProductID).Int("requested", item.Quantity).Msg("repository: insufficient stock, rolling back order")
			return &StockError{ProductID: item.ProductID, Requested: item.Quantity}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, user_id, total, status, shipping_address, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, o.UserID, o.Total, string(o.Status), o.ShippingAddress, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order: %w", err)
		}

		for _, item := range o.Items {
			_, err = tx.Exec(ctx, `
				INSERT INTO order_items (id, order_id, product_id, quantity, price)
				VALUES ($1, $2, $3, $4, $5)`,
				item.ID, o.ID, item.ProductID, item.Quantity, item.Price,
			)
			if err != nil {
				return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
			}
		}
		return nil
	})
}

const orderColumns = `id, user_id, total, status, shipping_address, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Total, &o.Status, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Items = make([]Item, 0)
	return &o, nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	byID := map[uuid.UUID]*Order{o.ID: o}
	if err := r.attachItems(ctx, byID, []uuid.UUID{o.ID}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresRepository) ListOrders(ctx context.Context, userID *uuid.UUID) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::uuid IS NULL OR user_id = $1)
		ORDER BY created_at DESC, id
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*Order)
	var ids []uuid.UUID
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}

	if len(ids) == 0 {
		return []Order{}, nil
	}
	if err := r.attachItems(ctx, byID, ids); err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, *byID[id])
	}
	return orders, nil
}

func (r *postgresRepository) attachItems(ctx context.Context, byID map[uuid.UUID]*Order, ids []uuid.UUID) error {
	query := `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("repository: failed iterating order items: %w", err)
	}
	return nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
			id, string(from), string(to), time.Now().UTC(),
		)
		if err != nil {
			log.Error().Err(err).Stringer("order_id", id).Stringer("new_status", to).Msg("repository: failed to update order status")
			return fmt.Errorf("repository: failed to update order status %s: %w", id, err)
		}
		if cmdTag.RowsAffected() == 1 {
			if to == StatusPaymentFailed {
				return ReleaseStock(ctx, tx, id)
			}
			return nil
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("repository: failed to check order %s: %w", id, err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return ErrStatusConflict
	})
}

// ReleaseStock adds the quantities of an order back to its products inside
// tx. Product rows are locked in id order, the order CreateOrder reserves
// them in. Lines whose product was deleted are skipped.
func ReleaseStock(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		SELECT id FROM products
		WHERE id IN (SELECT product_id FROM order_items WHERE order_id = $1)
		ORDER BY id
		FOR UPDATE`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to lock products of order %s: %w", orderID, err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE products p SET stock = p.stock + oi.quantity
		FROM (
			SELECT product_id, SUM(quantity) AS quantity
			FROM order_items WHERE order_id = $1
			GROUP BY product_id
		) oi
		WHERE p.id = oi.product_id`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to release stock of order %s: %w", orderID, err)
	}
	return nil
}

package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/db"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

var (
	ErrPaymentNotFound      = apperr.New(apperr.ErrNotFound, "payment not found")
	ErrActivePaymentExists  = apperr.New(apperr.ErrConflict, "order already has a pending payment")
	ErrInvalidStatusChange  = apperr.New(apperr.ErrConflict, "payment is no longer pending")
	ErrIntentMismatch       = apperr.New(apperr.ErrValidation, "payment intent does not belong to this order")
	ErrOrderNotPayable      = apperr.New(apperr.ErrConflict, "order is not awaiting payment")
	ErrAmountMismatch       = apperr.New(apperr.ErrValidation, "amount does not match order total")
	ErrUnsupportedCurrency  = apperr.New(apperr.ErrValidation, "unsupported currency")
	ErrInvalidWebhookEvent  = apperr.New(apperr.ErrValidation, "invalid webhook event")
	ErrUnknownPaymentStatus = apperr.New(apperr.ErrValidation, "unknown payment status")
)

type Repository interface {
	// CreatePayment fails with ErrActivePaymentExists when the order already
	// has a pending payment.
	CreatePayment(ctx context.Context, payment *Payment) error
	GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	// GetPaymentByOrderID returns the most recent payment of the order.
	GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	// UpdatePaymentStatus moves a payment from pending to a terminal status.
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status Status) error
	// SettlePayment applies s in one transaction guarded by the order still
	// being pending. It reports false, with no error, when the order had
	// already left pending, or when s.Unpaid is set and a payment exists.
	SettlePayment(ctx context.Context, s Settlement) (bool, error)
	ListPendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]Payment, error)
	// ListUnpaidOrders returns pending orders created before createdBefore
	// that have no payment row at all.
	ListUnpaidOrders(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const paymentColumns = `id, order_id, intent_id, amount, currency, status, payment_method, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.IntentID, &p.Amount, &p.Currency, &p.Status, &p.PaymentMethod, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postgresRepository) CreatePayment(ctx context.Context, p *Payment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.OrderID, p.IntentID, p.Amount, p.Currency, string(p.Status), p.PaymentMethod, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrActivePaymentExists
		}
		if db.IsForeignKeyViolation(err) {
			return order.ErrOrderNotFound
		}
		return fmt.Errorf("repository: failed to insert payment: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment %s: %w", id, err)
	}
	return p, nil
}

func (r *postgresRepository) GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC, id
		LIMIT 1
	`
	p, err := scanPayment(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment for order %s: %w", orderID, err)
	}
	return p, nil
}

func (r *postgresRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status Status) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'pending'`,
		id, string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update payment status %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetPaymentByID(ctx, id); err != nil {
		return err
	}
	return ErrInvalidStatusChange
}

func (r *postgresRepository) SettlePayment(ctx context.Context, s Settlement) (bool, error) {
	applied := false
	now := time.Now().UTC()

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, `
			UPDATE orders SET status = $2, updated_at = $3
			WHERE id = $1 AND status = 'pending'
				AND (NOT $4 OR NOT EXISTS (SELECT 1 FROM payments WHERE order_id = $1))`,
			s.OrderID, string(s.PaymentStatus.OrderStatus()), now, s.Unpaid,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to settle order %s: %w", s.OrderID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, s.OrderID).Scan(&exists); err != nil {
				return fmt.Errorf("repository: failed to check order %s: %w", s.OrderID, err)
			}
			if !exists {
				return order.ErrOrderNotFound
			}
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE payments
			SET status = CASE WHEN id = $2 THEN $3 ELSE 'failed' END, updated_at = $4
			WHERE order_id = $1 AND status = 'pending'`,
			s.OrderID, s.PaymentID, string(s.PaymentStatus), now,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to close payments of order %s: %w", s.OrderID, err)
		}

		if s.PaymentStatus == StatusFailed {
			if err := order.ReleaseStock(ctx, tx, s.OrderID); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *postgresRepository) ListPendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query pending payments: %w", err)
	}
	defer rows.Close()

	payments := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan pending payment: %w", err)
		}
		payments = append(payments, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating pending payments: %w", err)
	}
	return payments, nil
}

func (r *postgresRepository) ListUnpaidOrders(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT o.id
		FROM orders o
		WHERE o.status = 'pending' AND o.created_at < $1
			AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.order_id = o.id)
		ORDER BY o.created_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query unpaid orders: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repository: failed to scan unpaid order: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating unpaid orders: %w", err)
	}
	return ids, nil
}

package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
)

type CreateInput struct {
	OrderID       uuid.UUID
	IntentID      string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*Payment, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	Settle(ctx context.Context, s Settlement) (bool, error)
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]Payment, error)
	// ListUnpaid returns pending orders older than olderThan that never got
	// a payment.
	ListUnpaid(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{
		repo: repo,
		now:  time.Now,
	}
}

func (s *service) Create(ctx context.Context, input CreateInput) (*Payment, error) {
	if input.OrderID == uuid.Nil {
		return nil, apperr.Validation("order id is required")
	}
	if strings.TrimSpace(input.IntentID) == "" {
		return nil, apperr.Validation("payment intent id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, apperr.Validation("payment amount must be positive")
	}

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	method := input.PaymentMethod
	if method == "" {
		method = DefaultMethod
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate payment id: %w", err)
	}

	now := s.now().UTC()
	p := &Payment{
		ID:            id,
		OrderID:       input.OrderID,
		IntentID:      input.IntentID,
		Amount:        input.Amount,
		Currency:      currency,
		Status:        StatusPending,
		PaymentMethod: method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.CreatePayment(ctx, p); err != nil {
		if errors.Is(err, ErrActivePaymentExists) || errors.Is(err, apperr.ErrNotFound) {
			log.Warn().Err(err).Stringer("order_id", input.OrderID).Msg("service: payment rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", input.OrderID).Msg("service: failed to create payment in repository")
		return nil, fmt.Errorf("service: failed to create payment: %w", err)
	}

	log.Info().
		Stringer("payment_id", p.ID).
		Stringer("order_id", p.OrderID).
		Str("intent_id", p.IntentID).
		Str("amount", p.Amount.StringFixed(2)).
		Msg("service: payment created")
	return p, nil
}

func (s *service) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, ErrPaymentNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch payment in repository")
		return nil, fmt.Errorf("service: failed to fetch payment: %w", err)
	}
	return p, nil
}

// SetStatus moves a pending payment to a terminal status. Terminal statuses
// are final.
func (s *service) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if !status.Terminal() {
		return ErrUnknownPaymentStatus
	}
	if err := s.repo.UpdatePaymentStatus(ctx, id, status); err != nil {
		if errors.Is(err, ErrPaymentNotFound) || errors.Is(err, ErrInvalidStatusChange) {
			return err
		}
		log.Error().Err(err).Stringer("payment_id", id).Msg("service: failed to update payment status in repository")
		return fmt.Errorf("service: failed to update payment status: %w", err)
	}
	log.Info().Stringer("payment_id", id).Stringer("status", status).Msg("service: payment status updated")
	return nil
}

// Settle applies a settlement. It reports false when the order had already
// left pending, in which case nothing changed.
func (s *service) Settle(ctx context.Context, st Settlement) (bool, error) {
	if !st.PaymentStatus.Terminal() {
		return false, ErrUnknownPaymentStatus
	}
	applied, err := s.repo.SettlePayment(ctx, st)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, err
		}
		log.Error().Err(err).Stringer("order_id", st.OrderID).Msg("service: failed to settle payment in repository")
		return false, fmt.Errorf("service: failed to settle payment: %w", err)
	}

	if applied {
		log.Info().
			Stringer("order_id", st.OrderID).
			Stringer("payment_id", st.PaymentID).
			Stringer("payment_status", st.PaymentStatus).
			Msg("service: payment settled")
	} else {
		log.Info().Stringer("order_id", st.OrderID).Msg("service: order already settled, nothing to do")
	}
	return applied, nil
}

// ListStale returns pending payments created more than olderThan ago.
func (s *service) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]Payment, error) {
	payments, err := s.repo.ListPendingPayments(ctx, s.now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list stale payments: %w", err)
	}
	return payments, nil
}

func (s *service) ListUnpaid(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	ids, err := s.repo.ListUnpaidOrders(ctx, s.now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list unpaid orders: %w", err)
	}
	return ids, nil
}

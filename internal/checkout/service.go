// Package checkout drives the cart -> order -> payment workflow. Every path
// that decides the outcome of a payment (direct confirmation, gateway
// webhook, expiry sweep) goes through the same settlement call, which only
// acts while the order is still pending.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
)

var ErrEmptyCart = apperr.New(apperr.ErrValidation, "cart is empty")

var currencyPattern = regexp.MustCompile(`^[a-z]{3}$`)

type IntentRequest struct {
	OrderID uuid.UUID
	// Amount is optional; when set it must equal the order total.
	Amount   *decimal.Decimal
	Currency string
}

type IntentResult struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type Confirmation struct {
	Success     bool         `json:"success"`
	Status      string       `json:"status"`
	OrderStatus order.Status `json:"orderStatus"`
}

type Service interface {
	// CheckoutCart turns the user's server-side cart into a pending order.
	CheckoutCart(ctx context.Context, userID uuid.UUID, shippingAddress string) (*order.Order, error)
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*IntentResult, error)
	ConfirmPayment(ctx context.Context, intentID string, orderID uuid.UUID) (*Confirmation, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	HandleGatewayEvent(ctx context.Context, evt *payment.Event) error
	// ExpireStalePayments settles pending payments older than the configured
	// expiry, fails pending orders that got no payment within it, and returns
	// how many orders it moved out of pending.
	ExpireStalePayments(ctx context.Context) (int, error)
}

type Config struct {
	Currency      string
	PaymentExpiry time.Duration
	SweepBatch    int
}

const (
	DefaultPaymentExpiry = 30 * time.Minute
	DefaultSweepBatch    = 100
)

type service struct {
	orders   order.Service
	carts    cart.Service
	payments payment.Service
	gateway  payment.Gateway
	cfg      Config
}

func NewService(orders order.Service, carts cart.Service, payments payment.Service, gateway payment.Gateway, cfg Config) Service {
	if cfg.Currency == "" {
		cfg.Currency = payment.DefaultCurrency
	}
	if cfg.PaymentExpiry <= 0 {
		cfg.PaymentExpiry = DefaultPaymentExpiry
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = DefaultSweepBatch
	}
	return &service{
		orders:   orders,
		carts:    carts,
		payments: payments,
		gateway:  gateway,
		cfg:      cfg,
	}
}

func (s *service) CheckoutCart(ctx context.Context, userID uuid.UUID, shippingAddress string) (*order.Order, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user id is required")
	}

	c, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		log.Warn().Stringer("user_id", userID).Msg("checkout: attempt to check out an empty cart")
		return nil, ErrEmptyCart
	}

	lines := make([]order.LineInput, 0, len(c.Items))
	for _, line := range c.Items {
		lines = append(lines, order.LineInput{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	return s.orders.CreateOrder(ctx, order.CreateOrderInput{
		UserID:          uuid.NullUUID{UUID: userID, Valid: true},
		ShippingAddress: shippingAddress,
		Items:           lines,
	})
}

func (s *service) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*IntentResult, error) {
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.Currency
	}
	if !currencyPattern.MatchString(currency) {
		return nil, payment.ErrUnsupportedCurrency
	}

	o, err := s.orders.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending {
		log.Warn().Stringer("order_id", o.ID).Stringer("status", o.Status).Msg("checkout: payment requested for settled order")
		return nil, payment.ErrOrderNotPayable
	}
	if req.Amount != nil && !req.Amount.Equal(o.Total) {
		return nil, fmt.Errorf("%w: expected %s, got %s", payment.ErrAmountMismatch, o.Total.StringFixed(2), req.Amount.StringFixed(2))
	}

	existing, err := s.payments.GetByOrderID(ctx, o.ID)
	switch {
	case err == nil && existing.Status == payment.StatusPending:
		intent, err := s.gateway.GetIntent(ctx, existing.IntentID)
		if err != nil {
			log.Error().Err(err).Str("intent_id", existing.IntentID).Msg("checkout: failed to re-read pending intent")
			return nil, err
		}
		log.Info().Stringer("order_id", o.ID).Str("intent_id", existing.IntentID).Msg("checkout: reusing pending payment intent")
		return &IntentResult{ClientSecret: intent.ClientSecret, PaymentIntentID: existing.IntentID}, nil
	case err != nil && !errors.Is(err, payment.ErrPaymentNotFound):
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, payment.IntentParams{
		OrderID:  o.ID,
		Amount:   o.Total,
		Currency: currency,
	})
	if err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("checkout: gateway failed to create payment intent")
		return nil, err
	}

	_, err = s.payments.Create(ctx, payment.CreateInput{
		OrderID:  o.ID,
		IntentID: intent.ID,
		Amount:   o.Total,
		Currency: currency,
	})
	if err != nil {
		if errors.Is(err, payment.ErrActivePaymentExists) {
			if _, cancelErr := s.gateway.CancelIntent(ctx, intent.ID); cancelErr != nil {
				log.Warn().Err(cancelErr).Str("intent_id", intent.ID).Msg("checkout: failed to cancel duplicate intent")
			}
		}
		return nil, err
	}

	return &IntentResult{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
}

func (s *service) ConfirmPayment(ctx context.Context, intentID string, orderID uuid.UUID) (*Confirmation, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, apperr.Validation("payment intent id is required")
	}

	o, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		log.Error().Err(err).Str("intent_id", intentID).Msg("checkout: failed to retrieve payment intent")
		return nil, err
	}
	if intent.OrderID != "" && intent.OrderID != orderID.String() {
		log.Warn().Str("intent_id", intentID).Stringer("order_id", orderID).Str("intent_order_id", intent.OrderID).Msg("checkout: intent belongs to another order")
		return nil, payment.ErrIntentMismatch
	}

	var status payment.Status
	switch intent.Status {
	case payment.IntentSucceeded:
		status = payment.StatusCompleted
	case payment.IntentCanceled:
		status = payment.StatusFailed
	default:
		return &Confirmation{Success: false, Status: string(intent.Status), OrderStatus: o.Status}, nil
	}

	current, err := s.settle(ctx, orderID, intentID, status)
	if err != nil {
		return nil, err
	}
	return &Confirmation{
		Success:     current == order.StatusPaid,
		Status:      string(intent.Status),
		OrderStatus: current,
	}, nil
}

func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	evt, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		log.Warn().Err(err).Msg("checkout: rejected webhook payload")
		return err
	}
	return s.HandleGatewayEvent(ctx, evt)
}

func (s *service) HandleGatewayEvent(ctx context.Context, evt *payment.Event) error {
	var status payment.Status
	switch evt.Type {
	case payment.EventIntentSucceeded:
		status = payment.StatusCompleted
	case payment.EventIntentFailed:
		status = payment.StatusFailed
	default:
		log.Debug().Str("event_id", evt.ID).Str("event_type", evt.Type).Msg("checkout: ignoring webhook event")
		return nil
	}

	if evt.OrderID == "" {
		log.Warn().Str("event_id", evt.ID).Str("intent_id", evt.IntentID).Msg("checkout: webhook event has no order id, ignoring")
		return nil
	}
	orderID, err := uuid.FromString(evt.OrderID)
	if err != nil {
		return fmt.Errorf("%w: malformed order id %q", payment.ErrInvalidWebhookEvent, evt.OrderID)
	}

	current, err := s.settle(ctx, orderID, evt.IntentID, status)
	if err != nil {
		return err
	}
	log.Info().Str("event_id", evt.ID).Str("event_type", evt.Type).Stringer("order_id", orderID).Stringer("order_status", current).Msg("checkout: webhook processed")
	return nil
}

// settle applies the terminal payment status to the order and, when the
// latest payment row belongs to intentID, to that payment. A pending payment
// for a different intent is closed as failed and its intent canceled. It
// returns the order status after the call.
func (s *service) settle(ctx context.Context, orderID uuid.UUID, intentID string, status payment.Status) (order.Status, error) {
	paymentID := uuid.Nil
	superseded := ""
	p, err := s.payments.GetByOrderID(ctx, orderID)
	switch {
	case err == nil && p.IntentID == intentID:
		paymentID = p.ID
	case err == nil && p.Status == payment.StatusPending:
		superseded = p.IntentID
	case err != nil && !errors.Is(err, payment.ErrPaymentNotFound):
		return "", err
	}

	applied, err := s.payments.Settle(ctx, payment.Settlement{
		OrderID:       orderID,
		PaymentID:     paymentID,
		PaymentStatus: status,
	})
	if err != nil {
		return "", err
	}
	if applied {
		s.afterSettle(ctx, orderID, status)
		if superseded != "" {
			if _, err := s.gateway.CancelIntent(ctx, superseded); err != nil {
				log.Warn().Err(err).Str("intent_id", superseded).Stringer("order_id", orderID).Msg("checkout: failed to cancel superseded intent")
			}
		}
		return status.OrderStatus(), nil
	}

	o, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

// afterSettle refreshes cached stock once a failed settlement released it.
func (s *service) afterSettle(ctx context.Context, orderID uuid.UUID, status payment.Status) {
	if status == payment.StatusFailed {
		s.orders.InvalidateProducts(ctx, orderID)
	}
}

func (s *service) ExpireStalePayments(ctx context.Context) (int, error) {
	stale, err := s.payments.ListStale(ctx, s.cfg.PaymentExpiry, s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}

		intent, err := s.gateway.GetIntent(ctx, p.IntentID)
		if err != nil {
			log.Warn().Err(err).Stringer("payment_id", p.ID).Str("intent_id", p.IntentID).Msg("checkout: failed to read stale intent, will retry")
			continue
		}

		status := payment.StatusCompleted
		if intent.Status != payment.IntentSucceeded {
			status = payment.StatusFailed
			if intent.Status != payment.IntentCanceled {
				if _, err := s.gateway.CancelIntent(ctx, p.IntentID); err != nil {
					log.Warn().Err(err).Stringer("payment_id", p.ID).Str("intent_id", p.IntentID).Msg("checkout: failed to cancel stale intent, will retry")
					continue
				}
			}
		}

		applied, err := s.payments.Settle(ctx, payment.Settlement{
			OrderID:       p.OrderID,
			PaymentID:     p.ID,
			PaymentStatus: status,
		})
		if err != nil {
			log.Error().Err(err).Stringer("payment_id", p.ID).Msg("checkout: failed to settle stale payment")
			continue
		}
		if !applied {
			// The order was settled through another payment; close this one.
			if err := s.payments.SetStatus(ctx, p.ID, status); err != nil && !errors.Is(err, payment.ErrInvalidStatusChange) {
				log.Error().Err(err).Stringer("payment_id", p.ID).Msg("checkout: failed to close orphaned payment")
			}
			continue
		}

		s.afterSettle(ctx, p.OrderID, status)
		settled++
		log.Info().Stringer("payment_id", p.ID).Stringer("order_id", p.OrderID).Stringer("status", status).Msg("checkout: stale payment expired")
	}

	n, err := s.expireUnpaidOrders(ctx)
	return settled + n, err
}

// expireUnpaidOrders fails pending orders that never got a payment intent
// within the expiry, returning their stock.
func (s *service) expireUnpaidOrders(ctx context.Context) (int, error) {
	ids, err := s.payments.ListUnpaid(ctx, s.cfg.PaymentExpiry, s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}

		applied, err := s.payments.Settle(ctx, payment.Settlement{
			OrderID:       id,
			PaymentStatus: payment.StatusFailed,
			Unpaid:        true,
		})
		if err != nil {
			log.Error().Err(err).Stringer("order_id", id).Msg("checkout: failed to expire unpaid order")
			continue
		}
		if !applied {
			continue
		}

		s.afterSettle(ctx, id, payment.StatusFailed)
		expired++
		log.Info().Stringer("order_id", id).Msg("checkout: unpaid order expired")
	}
	return expired, nil
}

package payment

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// OrderStatus is the order status a payment status settles into.
func (s Status) OrderStatus() order.Status {
	switch s {
	case StatusCompleted:
		return order.StatusPaid
	case StatusFailed:
		return order.StatusPaymentFailed
	default:
		return order.StatusPending
	}
}

const (
	DefaultCurrency = "usd"
	DefaultMethod   = "card"
)

type Payment struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OrderID       uuid.UUID       `json:"orderId" db:"order_id"`
	IntentID      string          `json:"stripePaymentId" db:"intent_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Currency      string          `json:"currency" db:"currency"`
	Status        Status          `json:"status" db:"status"`
	PaymentMethod string          `json:"paymentMethod" db:"payment_method"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// Settlement moves a pending order into the terminal state matching
// PaymentStatus. PaymentID takes PaymentStatus; any other pending payment of
// the order is closed as failed. A failed settlement returns the reserved
// quantities to stock.
type Settlement struct {
	OrderID       uuid.UUID
	PaymentID     uuid.UUID // uuid.Nil when no payment row matches
	PaymentStatus Status

	// Unpaid restricts the settlement to orders that never got a payment row.
	Unpaid bool
}

type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
)

// Intent is the gateway's view of one payment attempt.
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	AmountCents  int64
	Currency     string
	OrderID      string
}

type IntentParams struct {
	OrderID  uuid.UUID
	Amount   decimal.Decimal
	Currency string
}

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// Event is a verified gateway callback. IntentID and OrderID are only set
// for payment intent events.
type Event struct {
	ID       string
	Type     string
	IntentID string
	OrderID  string
}

// Gateway is the external payment processor.
type Gateway interface {
	CreateIntent(ctx context.Context, params IntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) (*Intent, error)
	ParseEvent(payload []byte, signature string) (*Event, error)
}

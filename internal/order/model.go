package order

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusPaid          Status = "paid"
	StatusPaymentFailed Status = "payment_failed"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusPaid:          true,
		StatusPaymentFailed: true,
	},
	StatusPaid:          {},
	StatusPaymentFailed: {},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// Item is a line frozen at checkout. Price is the unit price at that moment
// and is never recomputed from the catalog.
type Item struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OrderID   uuid.UUID       `json:"orderId" db:"order_id"`
	ProductID uuid.UUID       `json:"productId" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"`
}

func (i *Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	UserID          uuid.NullUUID   `json:"userId" db:"user_id"`
	Total           decimal.Decimal `json:"total" db:"total"`
	Status          Status          `json:"status" db:"status"`
	ShippingAddress string          `json:"shippingAddress" db:"shipping_address"`
	Items           []Item          `json:"items" db:"-"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range o.Items {
		total = total.Add(o.Items[i].Subtotal())
	}
	return total
}

// Validate checks the snapshot invariants: at least one item, positive
// quantities, non-negative prices and Total equal to the sum of the lines.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range o.Items {
		if item.ProductID == uuid.Nil {
			return apperr.Validation("order item product id is required")
		}
		if item.Quantity < 1 {
			return apperr.Validation("order item quantity for product %s must be at least 1", item.ProductID)
		}
		if item.Price.IsNegative() {
			return apperr.Validation("order item price for product %s cannot be negative", item.ProductID)
		}
	}
	if sum := o.ItemsTotal(); !sum.Equal(o.Total) {
		return fmt.Errorf("order: total %s does not match items total %s", o.Total, sum)
	}
	return nil
}

// LineInput is what a client may submit per line: never a price.
type LineInput struct {
	ProductID uuid.UUID
	Quantity  int
}

type CreateOrderInput struct {
	UserID          uuid.NullUUID
	ShippingAddress string
	Items           []LineInput
}

// StockError reports a line that could not be reserved. It matches
// ErrInsufficientStock and apperr.ErrConflict.
type StockError struct {
	ProductID uuid.UUID
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock || target == apperr.ErrConflict
}

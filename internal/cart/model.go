package cart

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

// DefaultQuantity is used when AddItem is called without a quantity.
const DefaultQuantity = 1

// CartItem is one (user, product) pairing. There is at most one row per pair.
type CartItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	ProductID uuid.UUID `json:"productId" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Line is a cart item joined with the live catalog product.
type Line struct {
	CartItem
	Product catalog.Product `json:"product"`
}

// Subtotal prices the line at the product's current effective price.
func (l *Line) Subtotal() decimal.Decimal {
	return l.Product.EffectivePrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Totals struct {
	ItemCount int             `json:"itemCount"`
	Total     decimal.Decimal `json:"total"`
}

type Cart struct {
	UserID uuid.UUID `json:"userId"`
	Items  []Line    `json:"items"`
	Totals
}

// ComputeTotals is recomputed from the lines on every read; totals are never stored.
func ComputeTotals(lines []Line) Totals {
	t := Totals{Total: decimal.Zero}
	for i := range lines {
		t.ItemCount += lines[i].Quantity
		t.Total = t.Total.Add(lines[i].Subtotal())
	}
	return t
}

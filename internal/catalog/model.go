package catalog

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/money"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	maxRating = decimal.NewFromInt(5)
	hundred   = decimal.NewFromInt(100)
)

type Category struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
	Slug string    `json:"slug" db:"slug"`
}

type Product struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	Description string           `json:"description" db:"description"`
	Image       string           `json:"image" db:"image"`
	Price       decimal.Decimal  `json:"price" db:"price"`
	SalePrice   *decimal.Decimal `json:"salePrice" db:"sale_price"`
	Stock       int              `json:"stock" db:"stock"`
	Rating      decimal.Decimal  `json:"rating" db:"rating"`
	ReviewCount int              `json:"reviewCount" db:"review_count"`
	Featured    bool             `json:"featured" db:"featured"`
	CategoryID  uuid.NullUUID    `json:"categoryId" db:"category_id"`
	Category    *Category        `json:"category,omitempty" db:"-"`
	CreatedAt   time.Time        `json:"createdAt" db:"created_at"`
}

// EffectivePrice is the sale price when one is set, the list price otherwise.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}

// DiscountPercent is the whole-number discount shown next to a sale price.
func (p *Product) DiscountPercent() int {
	if p.SalePrice == nil || !p.Price.IsPositive() {
		return 0
	}
	return int(p.Price.Sub(*p.SalePrice).Div(p.Price).Mul(hundred).Round(0).IntPart())
}

func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Validation("product name is required")
	}
	if !p.Price.IsPositive() {
		return apperr.Validation("product price must be greater than zero")
	}
	if !money.Round(p.Price).Equal(p.Price) {
		return apperr.Validation("product price cannot have more than two decimal places")
	}
	if p.SalePrice != nil {
		if p.SalePrice.IsNegative() {
			return apperr.Validation("product sale price cannot be negative")
		}
		if !money.Round(*p.SalePrice).Equal(*p.SalePrice) {
			return apperr.Validation("product sale price cannot have more than two decimal places")
		}
		if !p.SalePrice.LessThan(p.Price) {
			return apperr.Validation("product sale price must be lower than price")
		}
	}
	if p.Stock < 0 {
		return apperr.Validation("product stock cannot be negative")
	}
	if p.Rating.IsNegative() || p.Rating.GreaterThan(maxRating) {
		return apperr.Validation("product rating must be between 0 and 5")
	}
	if p.ReviewCount < 0 {
		return apperr.Validation("product review count cannot be negative")
	}
	return nil
}

// ProductFilter narrows ListProducts. Nil fields are not applied.
type ProductFilter struct {
	CategoryID *uuid.UUID
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Search     string
	Featured   *bool
	Limit      int
	Offset     int
}

// Normalize applies pagination defaults and rejects inconsistent bounds.
func (f *ProductFilter) Normalize() error {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		return apperr.Validation("offset cannot be negative")
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return apperr.Validation("minPrice cannot be greater than maxPrice")
	}
	f.Search = strings.TrimSpace(f.Search)
	return nil
}

// Matches reports whether p passes every filter condition except pagination.
// Price bounds apply to the effective price.
func (f *ProductFilter) Matches(p *Product) bool {
	if f.CategoryID != nil && (!p.CategoryID.Valid || p.CategoryID.UUID != *f.CategoryID) {
		return false
	}
	price := p.EffectivePrice()
	if f.MinPrice != nil && price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			return false
		}
	}
	if f.Featured != nil && p.Featured != *f.Featured {
		return false
	}
	return true
}

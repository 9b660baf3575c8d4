package http

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/money"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

type CategoryResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

type ProductResponse struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Image           string            `json:"image"`
	Price           string            `json:"price"`
	SalePrice       *string           `json:"salePrice"`
	EffectivePrice  string            `json:"effectivePrice"`
	DiscountPercent int               `json:"discountPercent"`
	Stock           int               `json:"stock"`
	Rating          string            `json:"rating"`
	ReviewCount     int               `json:"reviewCount"`
	Featured        bool              `json:"featured"`
	CategoryID      *uuid.UUID        `json:"categoryId"`
	Category        *CategoryResponse `json:"category"`
	CreatedAt       time.Time         `json:"createdAt"`
}

type CartLineResponse struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"userId"`
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	Subtotal  string          `json:"subtotal"`
	CreatedAt time.Time       `json:"createdAt"`
	Product   ProductResponse `json:"product"`
}

type CartItemResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
}

type CartResponse struct {
	UserID    uuid.UUID          `json:"userId"`
	Items     []CartLineResponse `json:"items"`
	ItemCount int                `json:"itemCount"`
	Total     string             `json:"total"`
}

type OrderItemResponse struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"orderId"`
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
}

type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          *uuid.UUID          `json:"userId"`
	Total           string              `json:"total"`
	Status          order.Status        `json:"status"`
	ShippingAddress string              `json:"shippingAddress"`
	Items           []OrderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

type PaymentResponse struct {
	ID              uuid.UUID      `json:"id"`
	OrderID         uuid.UUID      `json:"orderId"`
	StripePaymentID string         `json:"stripePaymentId"`
	Amount          string         `json:"amount"`
	Currency        string         `json:"currency"`
	Status          payment.Status `json:"status"`
	PaymentMethod   string         `json:"paymentMethod"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

func newCategoryResponse(c catalog.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Name: c.Name, Slug: c.Slug}
}

func newProductResponse(p *catalog.Product) ProductResponse {
	resp := ProductResponse{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Image:           p.Image,
		Price:           money.Format(p.Price),
		SalePrice:       money.FormatPtr(p.SalePrice),
		EffectivePrice:  money.Format(p.EffectivePrice()),
		DiscountPercent: p.DiscountPercent(),
		Stock:           p.Stock,
		Rating:          p.Rating.StringFixed(1),
		ReviewCount:     p.ReviewCount,
		Featured:        p.Featured,
		CreatedAt:       p.CreatedAt,
	}
	if p.CategoryID.Valid {
		id := p.CategoryID.UUID
		resp.CategoryID = &id
	}
	if p.Category != nil {
		c := newCategoryResponse(*p.Category)
		resp.Category = &c
	}
	return resp
}

func newProductListResponse(products []catalog.Product) []ProductResponse {
	resp := make([]ProductResponse, 0, len(products))
	for i := range products {
		resp = append(resp, newProductResponse(&products[i]))
	}
	return resp
}

func newCartItemResponse(item *cart.CartItem) CartItemResponse {
	return CartItemResponse{
		ID:        item.ID,
		UserID:    item.UserID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		CreatedAt: item.CreatedAt,
	}
}

func newCartResponse(c *cart.Cart) CartResponse {
	resp := CartResponse{
		UserID:    c.UserID,
		Items:     make([]CartLineResponse, 0, len(c.Items)),
		ItemCount: c.ItemCount,
		Total:     money.Format(c.Total),
	}
	for i := range c.Items {
		line := &c.Items[i]
		resp.Items = append(resp.Items, CartLineResponse{
			ID:        line.ID,
			UserID:    line.UserID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Subtotal:  money.Format(line.Subtotal()),
			CreatedAt: line.CreatedAt,
			Product:   newProductResponse(&line.Product),
		})
	}
	return resp
}

func newOrderResponse(o *order.Order) OrderResponse {
	resp := OrderResponse{
		ID:              o.ID,
		Total:           money.Format(o.Total),
		Status:          o.Status,
		ShippingAddress: o.ShippingAddress,
		Items:           make([]OrderItemResponse, 0, len(o.Items)),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.UserID.Valid {
		id := o.UserID.UUID
		resp.UserID = &id
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:        item.ID,
			OrderID:   item.OrderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     money.Format(item.Price),
		})
	}
	return resp
}

func newPaymentResponse(p *payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:              p.ID,
		OrderID:         p.OrderID,
		StripePaymentID: p.IntentID,
		Amount:          money.Format(p.Amount),
		Currency:        p.Currency,
		Status:          p.Status,
		PaymentMethod:   p.PaymentMethod,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func newUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

type OrderDetailsRequest struct {
	UserID          *uuid.UUID `json:"userId"`
	ShippingAddress string     `json:"shippingAddress" validate:"required,max=1000"`
}

// OrderLineRequest carries no price: unit prices always come from the catalog.
type OrderLineRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type CreateOrderRequest struct {
	Order OrderDetailsRequest `json:"order"`
	Items []OrderLineRequest  `json:"items" validate:"required,min=1,dive"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid payment_failed"`
}

type CheckoutRequest struct {
	UserID          uuid.UUID `json:"userId" validate:"required"`
	ShippingAddress string    `json:"shippingAddress" validate:"required,max=1000"`
}

type OrderHandler struct {
	orders   order.Service
	checkout checkout.Service
	validate *validator.Validate
}

func NewOrderHandler(orders order.Service, checkoutService checkout.Service) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		checkout: checkoutService,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Get("/orders", h.handleListOrders)
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders/{id}", h.handleGetOrderByID)
	router.Put("/orders/{id}/status", h.handleUpdateOrderStatus)
	router.Post("/checkout", h.handleCheckout)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if v := r.URL.Query().Get("userId"); v != "" {
		id, err := uuid.FromString(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid userId parameter")
			return
		}
		userID = &id
	}

	orders, err := h.orders.ListOrders(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list orders")
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	input := order.CreateOrderInput{
		ShippingAddress: requestPayload.Order.ShippingAddress,
		Items:           make([]order.LineInput, 0, len(requestPayload.Items)),
	}
	if requestPayload.Order.UserID != nil {
		input.UserID = uuid.NullUUID{UUID: *requestPayload.Order.UserID, Valid: true}
	}
	for _, item := range requestPayload.Items {
		input.Items = append(input.Items, order.LineInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	created, err := h.orders.CreateOrder(r.Context(), input)
	if err != nil {
		respondWithServiceError(w, err, "Failed to create order")
		return
	}

	log.Info().Stringer("order_id", created.ID).Msg("Order created via API")
	respondWithJSON(w, http.StatusCreated, newOrderResponse(created))
}

func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.orders.GetOrderByID(r.Context(), orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get order")
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderResponse(o))
}

func (h *OrderHandler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateOrderStatusRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.orders.UpdateOrderStatus(r.Context(), orderID, order.Status(requestPayload.Status))
	if err != nil {
		respondWithServiceError(w, err, "Failed to update order status")
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderResponse(updated))
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var requestPayload CheckoutRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.checkout.CheckoutCart(r.Context(), requestPayload.UserID, requestPayload.ShippingAddress)
	if err != nil {
		respondWithServiceError(w, err, "Failed to check out cart")
		return
	}
	respondWithJSON(w, http.StatusCreated, newOrderResponse(created))
}

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/storefront/internal/cart"
)

type AddCartItemRequest struct {
	UserID    uuid.UUID `json:"userId" validate:"required"`
	ProductID uuid.UUID `json:"productId" validate:"required"`
	// Quantity defaults to 1 when omitted or zero.
	Quantity int `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type CartHandler struct {
	service  cart.Service
	validate *validator.Validate
}

func NewCartHandler(service cart.Service) *CartHandler {
	return &CartHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart/{userId}", h.handleGetCart)
	router.Post("/cart", h.handleAddItem)
	router.Put("/cart/{id}", h.handleUpdateQuantity)
	router.Delete("/cart/{id}", h.handleRemoveItem)
	router.Delete("/cart/clear/{userId}", h.handleClearCart)
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "userId")
	if !ok {
		return
	}

	c, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get cart")
		return
	}
	respondWithJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var requestPayload AddCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	item, err := h.service.AddItem(r.Context(), requestPayload.UserID, requestPayload.ProductID, requestPayload.Quantity)
	if err != nil {
		respondWithServiceError(w, err, "Failed to add item to cart")
		return
	}
	respondWithJSON(w, http.StatusCreated, newCartItemResponse(item))
}

func (h *CartHandler) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	item, removed, err := h.service.UpdateQuantity(r.Context(), itemID, *requestPayload.Quantity)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update cart item")
		return
	}
	if removed {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"message": "Item removed from cart", "removed": true})
		return
	}
	respondWithJSON(w, http.StatusOK, newCartItemResponse(item))
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.RemoveItem(r.Context(), itemID); err != nil {
		respondWithServiceError(w, err, "Failed to remove cart item")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Item removed from cart"})
}

func (h *CartHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "userId")
	if !ok {
		return
	}

	if err := h.service.Clear(r.Context(), userID); err != nil {
		respondWithServiceError(w, err, "Failed to clear cart")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared"})
}

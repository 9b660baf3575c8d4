package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/payment"
)

const signatureHeader = "Stripe-Signature"

type CreatePaymentIntentRequest struct {
	OrderID  uuid.UUID    `json:"orderId" validate:"required"`
	Amount   *json.Number `json:"amount"`
	Currency string       `json:"currency" validate:"omitempty,len=3"`
}

type ConfirmPaymentRequest struct {
	PaymentIntentID string    `json:"paymentIntentId" validate:"required"`
	OrderID         uuid.UUID `json:"orderId" validate:"required"`
}

type PaymentHandler struct {
	checkout checkout.Service
	payments payment.Service
	validate *validator.Validate
}

func NewPaymentHandler(checkoutService checkout.Service, payments payment.Service) *PaymentHandler {
	return &PaymentHandler{
		checkout: checkoutService,
		payments: payments,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the client-facing payment endpoints. The webhook is
// registered separately because it must not be rate limited per client.
func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/create-payment-intent", h.handleCreatePaymentIntent)
	router.Post("/confirm-payment", h.handleConfirmPayment)
	router.Get("/payments/order/{orderId}", h.handleGetPaymentByOrder)
}

func (h *PaymentHandler) RegisterWebhookRoutes(router chi.Router) {
	router.Post("/stripe-webhook", h.handleWebhook)
}

func (h *PaymentHandler) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreatePaymentIntentRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	amount, err := parseOptionalAmount("amount", requestPayload.Amount)
	if err != nil {
		respondWithServiceError(w, err, "Invalid amount")
		return
	}

	result, err := h.checkout.CreatePaymentIntent(r.Context(), checkout.IntentRequest{
		OrderID:  requestPayload.OrderID,
		Amount:   amount,
		Currency: requestPayload.Currency,
	})
	if err != nil {
		respondWithServiceError(w, err, "Error creating payment intent")
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var requestPayload ConfirmPaymentRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	result, err := h.checkout.ConfirmPayment(r.Context(), requestPayload.PaymentIntentID, requestPayload.OrderID)
	if err != nil {
		respondWithServiceError(w, err, "Error confirming payment")
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read webhook body")
		respondWithError(w, http.StatusBadRequest, "Webhook error")
		return
	}

	if err := h.checkout.HandleWebhook(r.Context(), payload, r.Header.Get(signatureHeader)); err != nil {
		log.Error().Err(err).Msg("Failed to process webhook")
		respondWithError(w, http.StatusBadRequest, "Webhook error")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *PaymentHandler) handleGetPaymentByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseUUIDParam(w, r, "orderId")
	if !ok {
		return
	}

	p, err := h.payments.GetByOrderID(r.Context(), orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch payment")
		return
	}
	respondWithJSON(w, http.StatusOK, newPaymentResponse(p))
}

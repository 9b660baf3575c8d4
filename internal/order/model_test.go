package order_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to order.Status
		want     bool
	}{
		{from: order.StatusPending, to: order.StatusPaid, want: true},
		{from: order.StatusPending, to: order.StatusPaymentFailed, want: true},
		{from: order.StatusPaid, to: order.StatusPending, want: false},
		{from: order.StatusPaid, to: order.StatusPaymentFailed, want: false},
		{from: order.StatusPaymentFailed, to: order.StatusPaid, want: false},
		{from: order.StatusPaymentFailed, to: order.StatusPending, want: false},
		{from: order.Status("shipped"), to: order.StatusPaid, want: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s to %s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, order.CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, order.StatusPending.Valid())
	assert.True(t, order.StatusPaid.Valid())
	assert.True(t, order.StatusPaymentFailed.Valid())
	assert.False(t, order.Status("cancelled").Valid())
}

func TestOrder_Validate(t *testing.T) {
	productID := uuid.Must(uuid.NewV4())
	item := func(qty int, price string) order.Item {
		return order.Item{ProductID: productID, Quantity: qty, Price: decimal.RequireFromString(price)}
	}

	tests := []struct {
		name      string
		order     order.Order
		wantErr   bool
		wantErrIs error
	}{
		{
			name:  "valid",
			order: order.Order{Items: []order.Item{item(2, "50.00"), item(1, "25.00")}, Total: decimal.RequireFromString("125")},
		},
		{
			name:      "no items",
			order:     order.Order{Total: decimal.Zero},
			wantErr:   true,
			wantErrIs: order.ErrEmptyOrder,
		},
		{
			name:      "zero quantity",
			order:     order.Order{Items: []order.Item{item(0, "10")}, Total: decimal.Zero},
			wantErr:   true,
			wantErrIs: apperr.ErrValidation,
		},
		{
			name:      "negative price",
			order:     order.Order{Items: []order.Item{item(1, "-1")}, Total: decimal.RequireFromString("-1")},
			wantErr:   true,
			wantErrIs: apperr.ErrValidation,
		},
		{
			name:    "total mismatch",
			order:   order.Order{Items: []order.Item{item(2, "50.00")}, Total: decimal.RequireFromString("99.99")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.order.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			if tt.wantErrIs != nil {
				assert.True(t, errors.Is(err, tt.wantErrIs))
			}
		})
	}
}

func TestStockError(t *testing.T) {
	err := fmt.Errorf("repository: %w", &order.StockError{ProductID: uuid.Must(uuid.NewV4()), Requested: 3})
	assert.True(t, errors.Is(err, order.ErrInsufficientStock))
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	var stockErr *order.StockError
	assert.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 3, stockErr.Requested)
}

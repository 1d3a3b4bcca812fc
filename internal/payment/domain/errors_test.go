package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentErrorKinds(t *testing.T) {
	validation := NewValidationError(GatewayStripe, "user already has an active subscription")
	assert.ErrorIs(t, validation, ErrValidation)
	assert.ErrorIs(t, validation, ErrPayment)
	assert.NotErrorIs(t, validation, ErrGateway)
	assert.Equal(t, "stripe: user already has an active subscription", validation.Error())

	cfg := NewConfigurationError(GatewayPayPal, "gateway not implemented")
	assert.ErrorIs(t, cfg, ErrConfiguration)
	assert.NotErrorIs(t, cfg, ErrValidation)
}

func TestGatewayErrorWrapsCause(t *testing.T) {
	cause := errors.New("card_declined")
	err := NewGatewayError(GatewayPaystack, "create customer failed", cause, map[string]any{"email": "a@b.c"})

	wrapped := fmt.Errorf("create subscription: %w", err)
	assert.ErrorIs(t, wrapped, ErrGateway)
	assert.ErrorIs(t, wrapped, cause)

	var perr *PaymentError
	require.ErrorAs(t, wrapped, &perr)
	assert.Equal(t, CodeGateway, perr.Code)
	assert.Equal(t, "a@b.c", perr.Metadata["email"])
	assert.Contains(t, perr.Error(), "card_declined")
}

func TestAsPaymentError(t *testing.T) {
	assert.Nil(t, AsPaymentError(nil))

	original := NewValidationError(GatewayStripe, "invalid")
	assert.Same(t, original, AsPaymentError(original))

	wrapped := AsPaymentError(errors.New("connection reset"))
	require.NotNil(t, wrapped)
	assert.Equal(t, CodeGateway, wrapped.Code)
	assert.Equal(t, GatewayUnknown, wrapped.Gateway)
}

func TestCapabilitiesIsSupported(t *testing.T) {
	caps := Capabilities{
		Currencies: []string{"NGN", "USD"},
		Methods:    []PaymentMethod{PaymentMethodCard},
	}
	assert.True(t, caps.IsSupported("ngn", PaymentMethodCard))
	assert.True(t, caps.IsSupported("USD", ""))
	assert.False(t, caps.IsSupported("EUR", PaymentMethodCard))
	assert.False(t, caps.IsSupported("NGN", PaymentMethodWallet))
}

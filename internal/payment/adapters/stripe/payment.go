package stripe

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/smallbiznis/paycore/internal/payment/domain"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/zap"
)

func (a *Adapter) CreateCustomer(ctx context.Context, info domain.CustomerInfo) (string, error) {
	api, err := a.client()
	if err != nil {
		return "", err
	}
	return a.createCustomer(ctx, api, info)
}

func (a *Adapter) createCustomer(ctx context.Context, api *client.API, info domain.CustomerInfo) (string, error) {
	if strings.TrimSpace(info.Email) == "" {
		return "", domain.NewValidationError(domain.GatewayStripe, "customer email is required")
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(info.Email),
	}
	params.Context = ctx
	if info.Name != "" {
		params.Name = stripe.String(info.Name)
	}
	if info.Phone != "" {
		params.Phone = stripe.String(info.Phone)
	}
	if addr := info.Address; addr != nil {
		params.Address = &stripe.AddressParams{
			Line1:      stripe.String(addr.Line1),
			Line2:      stripe.String(addr.Line2),
			City:       stripe.String(addr.City),
			State:      stripe.String(addr.State),
			PostalCode: stripe.String(addr.PostalCode),
			Country:    stripe.String(addr.Country),
		}
	}
	if info.UserID != "" {
		params.AddMetadata("user_id", info.UserID)
	}
	for k, v := range info.Metadata {
		params.AddMetadata(k, v)
	}

	customer, err := api.Customers.New(params)
	if err != nil {
		return "", gatewayError("create customer failed", err, info.Fields())
	}
	a.log.Debug("customer created", zap.String("customer_id", customer.ID), zap.String("user_id", info.UserID))
	return customer.ID, nil
}

func (a *Adapter) ProcessPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResponse, error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError(domain.GatewayStripe, "amount must be positive")
	}

	customerID := req.CustomerID
	if customerID == "" {
		customerID, err = a.createCustomer(ctx, api, req.Customer)
		if err != nil {
			return nil, err
		}
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(domain.ToMinorUnits(req.Amount)),
		Currency: stripe.String(currency),
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.PaymentMethod != "" {
		params.PaymentMethodTypes = stripe.StringSlice([]string{paymentMethodType(req.PaymentMethod)})
	}
	if req.Customer.UserID != "" {
		params.AddMetadata("user_id", req.Customer.UserID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := api.PaymentIntents.New(params)
	if err != nil {
		return nil, gatewayError("create payment intent failed", err, map[string]any{
			"customer_id": customerID,
			"amount":      req.Amount.String(),
			"currency":    currency,
		})
	}

	var raw json.RawMessage
	if intent.LastResponse != nil {
		raw = json.RawMessage(intent.LastResponse.RawJSON)
	}
	return &domain.PaymentResponse{
		Success:              true,
		TransactionID:        intent.ID,
		GatewayTransactionID: intent.ID,
		Status:               mapPaymentStatus(string(intent.Status)),
		Amount:               domain.FromMinorUnits(intent.Amount),
		Currency:             strings.ToUpper(string(intent.Currency)),
		GatewayResponse:      raw,
		Metadata: map[string]string{
			"client_secret": intent.ClientSecret,
			"customer_id":   customerID,
		},
	}, nil
}

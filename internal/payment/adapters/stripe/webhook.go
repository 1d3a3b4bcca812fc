package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/stripe/stripe-go/v74/webhook"
)

// VerifyWebhook checks the Stripe-Signature header with the SDK and
// normalizes the event object.
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, signature string) (*domain.WebhookEvent, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, domain.NewConfigurationError(domain.GatewayStripe, "webhook secret is not configured")
	}
	if strings.TrimSpace(signature) == "" {
		return nil, domain.NewValidationError(domain.GatewayStripe, "missing webhook signature")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		verr := domain.NewValidationError(domain.GatewayStripe, "invalid webhook signature")
		verr.Err = err
		return nil, verr
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.NewValidationError(domain.GatewayStripe, "webhook event has no id")
	}

	var object stripeObject
	if event.Data != nil && len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
			verr := domain.NewValidationError(domain.GatewayStripe, "malformed webhook object")
			verr.Err = err
			return nil, verr
		}
	}

	return &domain.WebhookEvent{
		ID:         event.ID,
		Type:       string(event.Type),
		Gateway:    domain.GatewayStripe,
		Payload:    json.RawMessage(payload),
		OccurredAt: timestamp(event.Created, a.clock.Now()),
		Data:       object.normalize(),
		Metadata: map[string]string{
			"livemode": strconv.FormatBool(event.Livemode),
			"object":   object.Object,
		},
	}, nil
}

// expandableID accepts either a bare id or an expanded object carrying one.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

// stripeObject is the union of the invoice, charge, payment_intent,
// subscription and dispute fields the dispatcher needs.
type stripeObject struct {
	ID            string       `json:"id"`
	Object        string       `json:"object"`
	Subscription  expandableID `json:"subscription"`
	Customer      expandableID `json:"customer"`
	PaymentIntent expandableID `json:"payment_intent"`
	Charge        expandableID `json:"charge"`
	Amount        int64        `json:"amount"`
	AmountPaid    int64        `json:"amount_paid"`
	AmountDue     int64        `json:"amount_due"`
	Currency      string       `json:"currency"`
	CustomerEmail string       `json:"customer_email"`
	ReceiptEmail  string       `json:"receipt_email"`
}

func (o stripeObject) normalize() domain.WebhookData {
	data := domain.WebhookData{
		GatewayCustomerID: string(o.Customer),
		Currency:          strings.ToUpper(o.Currency),
		CustomerEmail:     o.CustomerEmail,
		AmountMinor:       o.Amount,
	}
	if data.CustomerEmail == "" {
		data.CustomerEmail = o.ReceiptEmail
	}

	switch o.Object {
	case "subscription":
		data.GatewaySubscriptionID = o.ID
	case "invoice":
		data.GatewaySubscriptionID = string(o.Subscription)
		data.GatewayTransactionID = firstNonEmpty(string(o.PaymentIntent), string(o.Charge), o.ID)
		data.AmountMinor = o.AmountPaid
		if data.AmountMinor == 0 {
			data.AmountMinor = o.AmountDue
		}
	case "payment_intent":
		data.GatewayTransactionID = o.ID
	case "dispute":
		data.GatewayTransactionID = firstNonEmpty(string(o.PaymentIntent), string(o.Charge))
	default:
		// charges and anything else keyed the same way
		data.GatewaySubscriptionID = string(o.Subscription)
		data.GatewayTransactionID = firstNonEmpty(string(o.PaymentIntent), o.ID)
	}
	return data
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

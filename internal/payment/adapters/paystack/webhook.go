package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/paycore/internal/payment/domain"
)

type webhookEvent struct {
	Event string      `json:"event"`
	Data  webhookData `json:"data"`
}

type webhookData struct {
	ID               json.RawMessage `json:"id"`
	Reference        string          `json:"reference"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Paid             bool            `json:"paid"`
	SubscriptionCode string          `json:"subscription_code"`
	CreatedAt        string          `json:"created_at"`
	PaidAt           string          `json:"paid_at"`
	Customer         struct {
		Email        string `json:"email"`
		CustomerCode string `json:"customer_code"`
	} `json:"customer"`
	Subscription *struct {
		SubscriptionCode string `json:"subscription_code"`
	} `json:"subscription"`
	Transaction *struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	} `json:"transaction"`
}

// Sign returns the hex HMAC-SHA512 Paystack puts in x-paystack-signature.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks x-paystack-signature against the raw body. Paystack
// signs with the account secret key unless a dedicated webhook secret is set.
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, signature string) (*domain.WebhookEvent, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	secret := cfg.WebhookSecret
	if secret == "" {
		secret = cfg.SecretKey
	}

	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return nil, domain.NewValidationError(domain.GatewayPaystack, "missing webhook signature")
	}
	expected := Sign(secret, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, domain.NewValidationError(domain.GatewayPaystack, "invalid webhook signature")
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		verr := domain.NewValidationError(domain.GatewayPaystack, "malformed webhook payload")
		verr.Err = err
		return nil, verr
	}
	if strings.TrimSpace(event.Event) == "" {
		return nil, domain.NewValidationError(domain.GatewayPaystack, "webhook event has no type")
	}

	data := domain.WebhookData{
		GatewaySubscriptionID: event.Data.SubscriptionCode,
		GatewayTransactionID:  event.Data.Reference,
		GatewayCustomerID:     event.Data.Customer.CustomerCode,
		AmountMinor:           event.Data.Amount,
		Currency:              strings.ToUpper(event.Data.Currency),
		CustomerEmail:         event.Data.Customer.Email,
	}
	if data.GatewaySubscriptionID == "" && event.Data.Subscription != nil {
		data.GatewaySubscriptionID = event.Data.Subscription.SubscriptionCode
	}
	if tx := event.Data.Transaction; tx != nil {
		if data.GatewayTransactionID == "" {
			data.GatewayTransactionID = tx.Reference
		}
		if data.AmountMinor == 0 {
			data.AmountMinor = tx.Amount
		}
	}

	return &domain.WebhookEvent{
		ID:         eventID(event, payload),
		Type:       event.Event,
		Gateway:    domain.GatewayPaystack,
		Payload:    json.RawMessage(payload),
		OccurredAt: a.occurredAt(event.Data),
		Data:       data,
		Metadata: map[string]string{
			"status": event.Data.Status,
			"paid":   strconv.FormatBool(event.Data.Paid || event.Data.Status == "success"),
		},
	}, nil
}

// eventID derives a stable identifier; Paystack events carry none of their own.
func eventID(event webhookEvent, payload []byte) string {
	id := strings.Trim(string(bytes.TrimSpace(event.Data.ID)), `"`)
	if id == "" || id == "null" {
		id = event.Data.Reference
	}
	if id == "" {
		id = event.Data.SubscriptionCode
	}
	if id == "" {
		sum := sha256.Sum256(payload)
		id = hex.EncodeToString(sum[:])
	}
	// An invoice is updated more than once (pending, then paid).
	if event.Event == "invoice.update" && event.Data.Status != "" {
		id += ":" + event.Data.Status
	}
	return event.Event + ":" + id
}

func (a *Adapter) occurredAt(data webhookData) time.Time {
	for _, raw := range []string{data.PaidAt, data.CreatedAt} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
	}
	return a.clock.Now()
}

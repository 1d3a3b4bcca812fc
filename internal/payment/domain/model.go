package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusDisputed  PaymentStatus = "disputed"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

type BillingCycle string

const (
	BillingCycleMonthly   BillingCycle = "monthly"
	BillingCycleQuarterly BillingCycle = "quarterly"
	BillingCycleYearly    BillingCycle = "yearly"
	BillingCycleCustom    BillingCycle = "custom"
)

// NextBillingDate advances from by one cycle. Custom cycles bill monthly.
func (c BillingCycle) NextBillingDate(from time.Time) time.Time {
	switch c {
	case BillingCycleQuarterly:
		return from.AddDate(0, 3, 0)
	case BillingCycleYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// CustomerInfo is the snapshot of a user handed to a gateway when a
// customer record must exist there.
type CustomerInfo struct {
	UserID   string
	Email    string
	Name     string
	Phone    string
	Address  *Address
	Metadata map[string]string
}

// Fields is the diagnostic view of the customer attached to gateway errors.
func (c CustomerInfo) Fields() map[string]any {
	return map[string]any{
		"user_id": c.UserID,
		"email":   c.Email,
		"name":    c.Name,
	}
}

type SubscriptionRequest struct {
	Customer CustomerInfo
	// CustomerID reuses an existing gateway customer when set.
	CustomerID    string
	PlanID        string
	PlanName      string
	Description   string
	Amount        decimal.Decimal
	Currency      string
	BillingCycle  BillingCycle
	PaymentMethod PaymentMethod
	TrialDays     int
	Metadata      map[string]string
}

type SubscriptionResponse struct {
	Success               bool
	GatewaySubscriptionID string
	GatewayCustomerID     string
	GatewayPlanID         string
	Status                SubscriptionStatus
	NextBillingDate       time.Time
	CurrentPeriodStart    time.Time
	CurrentPeriodEnd      time.Time
	TrialStart            *time.Time
	TrialEnd              *time.Time
	Metadata              map[string]string
}

type PaymentRequest struct {
	Customer      CustomerInfo
	CustomerID    string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	PaymentMethod PaymentMethod
	Metadata      map[string]string
}

type PaymentResponse struct {
	Success              bool
	TransactionID        string
	GatewayTransactionID string
	Status               PaymentStatus
	Amount               decimal.Decimal
	Currency             string
	GatewayResponse      json.RawMessage
	// Metadata holds continuation artifacts such as client_secret or authorization_url.
	Metadata map[string]string
}

type CancelSubscriptionRequest struct {
	GatewaySubscriptionID string
	CancelAtPeriodEnd     bool
	Reason                string
	// Token is the provider specific secondary credential (Paystack email token).
	Token string
}

type CancelSubscriptionResponse struct {
	Success           bool
	Status            SubscriptionStatus
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
}

type UpdateSubscriptionRequest struct {
	GatewaySubscriptionID string
	GatewayPlanID         string
	Currency              string
	PlanName              string
	BillingCycle          BillingCycle
	Amount                *decimal.Decimal
	Metadata              map[string]string
}

type UpdateSubscriptionResponse struct {
	Success       bool
	Status        SubscriptionStatus
	GatewayPlanID string
	ChangedFields []string
}

// WebhookEvent is the normalized envelope produced by VerifyWebhook.
type WebhookEvent struct {
	ID         string
	Type       string
	Gateway    GatewayName
	Payload    json.RawMessage
	OccurredAt time.Time
	Data       WebhookData
	Metadata   map[string]string
}

// WebhookData carries the fields the dispatcher needs, extracted by the
// adapter from the provider payload.
type WebhookData struct {
	GatewaySubscriptionID string
	GatewayTransactionID  string
	GatewayCustomerID     string
	AmountMinor           int64
	Currency              string
	CustomerEmail         string
}

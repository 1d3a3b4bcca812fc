package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// User is owned by the hosting application; the payment core only reads it.
type User struct {
	ID      string         `json:"id" gorm:"primaryKey;type:text"`
	Email   string         `json:"email" gorm:"type:text"`
	Name    string         `json:"name" gorm:"type:text"`
	Phone   string         `json:"phone" gorm:"type:text"`
	Address datatypes.JSON `json:"address" gorm:"type:jsonb"`
}

func (User) TableName() string { return "users" }

type SubscriptionPlan struct {
	ID           string          `json:"id" gorm:"primaryKey;type:text"`
	Name         string          `json:"name" gorm:"type:text;not null"`
	Description  string          `json:"description" gorm:"type:text"`
	MonthlyPrice decimal.Decimal `json:"monthly_price" gorm:"type:numeric;not null"`
	Currency     string          `json:"currency" gorm:"type:text;not null"`
	Features     datatypes.JSON  `json:"features" gorm:"type:jsonb"`
	IsActive     bool            `json:"is_active" gorm:"not null"`
}

func (SubscriptionPlan) TableName() string { return "subscription_plans" }

type Subscription struct {
	ID                    snowflake.ID       `json:"id" gorm:"primaryKey"`
	UserID                string             `json:"user_id" gorm:"type:text;not null;index"`
	PlanID                string             `json:"plan_id" gorm:"type:text;not null"`
	PlanName              string             `json:"plan_name" gorm:"type:text"`
	PlanType              string             `json:"plan_type" gorm:"type:text"`
	Status                SubscriptionStatus `json:"status" gorm:"type:text;not null"`
	IsActive              bool               `json:"is_active" gorm:"not null"`
	BillingCycle          BillingCycle       `json:"billing_cycle" gorm:"type:text;not null"`
	Amount                decimal.Decimal    `json:"amount" gorm:"type:numeric;not null"`
	Currency              string             `json:"currency" gorm:"type:text;not null"`
	NextBillingDate       *time.Time         `json:"next_billing_date"`
	CurrentPeriodStart    *time.Time         `json:"current_period_start"`
	CurrentPeriodEnd      *time.Time         `json:"current_period_end"`
	Gateway               GatewayName        `json:"gateway" gorm:"type:text;not null"`
	GatewaySubscriptionID string             `json:"gateway_subscription_id" gorm:"type:text;index"`
	GatewayCustomerID     string             `json:"gateway_customer_id" gorm:"type:text"`
	GatewayPlanID         string             `json:"gateway_plan_id" gorm:"type:text"`
	TrialStart            *time.Time         `json:"trial_start"`
	TrialEnd              *time.Time         `json:"trial_end"`
	IsTrialActive         bool               `json:"is_trial_active" gorm:"not null"`
	WillCancelAtPeriodEnd bool               `json:"will_cancel_at_period_end" gorm:"not null"`
	CanceledAt            *time.Time         `json:"canceled_at"`
	CancelReason          string             `json:"cancel_reason" gorm:"type:text"`
	Metadata              datatypes.JSON     `json:"metadata" gorm:"type:jsonb"`
	CreatedAt             time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time          `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

type PaymentTransaction struct {
	ID                   snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID               string          `json:"user_id" gorm:"type:text;index"`
	TransactionID        string          `json:"transaction_id" gorm:"type:text;not null"`
	Amount               decimal.Decimal `json:"amount" gorm:"type:numeric;not null"`
	Currency             string          `json:"currency" gorm:"type:text;not null"`
	Status               PaymentStatus   `json:"status" gorm:"type:text;not null"`
	Gateway              GatewayName     `json:"gateway" gorm:"type:text;not null"`
	GatewayTransactionID string          `json:"gateway_transaction_id" gorm:"type:text;index"`
	GatewayResponse      datatypes.JSON  `json:"gateway_response" gorm:"type:jsonb"`
	PaymentMethod        PaymentMethod   `json:"payment_method" gorm:"type:text"`
	Description          string          `json:"description" gorm:"type:text"`
	Metadata             datatypes.JSON  `json:"metadata" gorm:"type:jsonb"`
	CreatedAt            time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time       `json:"updated_at" gorm:"not null"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

// GatewayCustomer caches the provider customer created for a user.
type GatewayCustomer struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID            string       `json:"user_id" gorm:"type:text;not null"`
	Gateway           GatewayName  `json:"gateway" gorm:"type:text;not null"`
	GatewayCustomerID string       `json:"gateway_customer_id" gorm:"type:text;not null"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
}

func (GatewayCustomer) TableName() string { return "gateway_customers" }

// WebhookEventRecord marks a provider event as received. The unique
// (gateway, event_id) pair is what makes redelivery a no-op.
type WebhookEventRecord struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	Gateway     GatewayName    `json:"gateway" gorm:"type:text;not null"`
	EventID     string         `json:"event_id" gorm:"type:text;not null"`
	EventType   string         `json:"event_type" gorm:"type:text;not null"`
	Payload     datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt *time.Time     `json:"processed_at"`
}

func (WebhookEventRecord) TableName() string { return "payment_webhook_events" }

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindUser(ctx context.Context, db *gorm.DB, userID string) (*User, error)
	FindPlan(ctx context.Context, db *gorm.DB, planID string) (*SubscriptionPlan, error)

	FindActiveSubscription(ctx context.Context, db *gorm.DB, userID string) (*Subscription, error)
	FindSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindSubscriptionByGatewayID(ctx context.Context, db *gorm.DB, gateway GatewayName, gatewaySubscriptionID string) (*Subscription, error)
	InsertSubscription(ctx context.Context, db *gorm.DB, sub *Subscription) error
	UpdateSubscription(ctx context.Context, db *gorm.DB, sub *Subscription) error

	FindGatewayCustomer(ctx context.Context, db *gorm.DB, userID string, gateway GatewayName) (*GatewayCustomer, error)
	InsertGatewayCustomer(ctx context.Context, db *gorm.DB, customer *GatewayCustomer) (bool, error)

	InsertTransaction(ctx context.Context, db *gorm.DB, tx *PaymentTransaction) error
	FindTransactionByGatewayID(ctx context.Context, db *gorm.DB, gateway GatewayName, gatewayTransactionID string) (*PaymentTransaction, error)
	UpdateTransactionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status PaymentStatus, updatedAt time.Time) error

	InsertWebhookEvent(ctx context.Context, db *gorm.DB, event *WebhookEventRecord) (bool, error)
	FindWebhookEvent(ctx context.Context, db *gorm.DB, gateway GatewayName, eventID string) (*WebhookEventRecord, error)
	MarkWebhookEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, user_id, plan_id, plan_name, plan_type, status, is_active,
	billing_cycle, amount, currency, next_billing_date, current_period_start,
	current_period_end, gateway, gateway_subscription_id, gateway_customer_id,
	gateway_plan_id, trial_start, trial_end, is_trial_active,
	will_cancel_at_period_end, canceled_at, cancel_reason, metadata,
	created_at, updated_at`

const transactionColumns = `id, user_id, transaction_id, amount, currency, status, gateway,
	gateway_transaction_id, gateway_response, payment_method, description,
	metadata, created_at, updated_at`

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, userID string) (*domain.User, error) {
	var item domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, phone, address
		 FROM users
		 WHERE id = ?
		 LIMIT 1`,
		userID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindPlan(ctx context.Context, db *gorm.DB, planID string) (*domain.SubscriptionPlan, error) {
	var item domain.SubscriptionPlan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, description, monthly_price, currency, features, is_active
		 FROM subscription_plans
		 WHERE id = ?
		 LIMIT 1`,
		planID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindActiveSubscription(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error) {
	return r.findSubscription(ctx, db,
		`user_id = ? AND is_active = ? AND status IN ?
		 ORDER BY created_at DESC`,
		userID,
		true,
		[]string{string(domain.SubscriptionStatusActive), string(domain.SubscriptionStatusTrialing)},
	)
}

func (r *repo) FindSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findSubscription(ctx, db, `id = ?`, id)
}

func (r *repo) FindSubscriptionByGatewayID(ctx context.Context, db *gorm.DB, gateway domain.GatewayName, gatewaySubscriptionID string) (*domain.Subscription, error) {
	return r.findSubscription(ctx, db,
		`gateway = ? AND gateway_subscription_id = ?
		 ORDER BY created_at DESC`,
		gateway,
		gatewaySubscriptionID,
	)
}

func (r *repo) findSubscription(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE `+where+`
		 LIMIT 1`,
		args...,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertSubscription(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.PlanName,
		sub.PlanType,
		sub.Status,
		sub.IsActive,
		sub.BillingCycle,
		sub.Amount,
		sub.Currency,
		sub.NextBillingDate,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.Gateway,
		sub.GatewaySubscriptionID,
		sub.GatewayCustomerID,
		sub.GatewayPlanID,
		sub.TrialStart,
		sub.TrialEnd,
		sub.IsTrialActive,
		sub.WillCancelAtPeriodEnd,
		sub.CanceledAt,
		sub.CancelReason,
		sub.Metadata,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) UpdateSubscription(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, is_active = ?, billing_cycle = ?, amount = ?,
			next_billing_date = ?, current_period_start = ?, current_period_end = ?,
			gateway_plan_id = ?, is_trial_active = ?, will_cancel_at_period_end = ?,
			canceled_at = ?, cancel_reason = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		sub.Status,
		sub.IsActive,
		sub.BillingCycle,
		sub.Amount,
		sub.NextBillingDate,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.GatewayPlanID,
		sub.IsTrialActive,
		sub.WillCancelAtPeriodEnd,
		sub.CanceledAt,
		sub.CancelReason,
		sub.Metadata,
		sub.UpdatedAt,
		sub.ID,
	).Error
}

func (r *repo) FindGatewayCustomer(ctx context.Context, db *gorm.DB, userID string, gateway domain.GatewayName) (*domain.GatewayCustomer, error) {
	var item domain.GatewayCustomer
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, gateway, gateway_customer_id, created_at
		 FROM gateway_customers
		 WHERE user_id = ? AND gateway = ?
		 LIMIT 1`,
		userID,
		gateway,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertGatewayCustomer(ctx context.Context, db *gorm.DB, customer *domain.GatewayCustomer) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO gateway_customers (id, user_id, gateway, gateway_customer_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, gateway) DO NOTHING`,
		customer.ID,
		customer.UserID,
		customer.Gateway,
		customer.GatewayCustomerID,
		customer.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, tx *domain.PaymentTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.UserID,
		tx.TransactionID,
		tx.Amount,
		tx.Currency,
		tx.Status,
		tx.Gateway,
		tx.GatewayTransactionID,
		tx.GatewayResponse,
		tx.PaymentMethod,
		tx.Description,
		tx.Metadata,
		tx.CreatedAt,
		tx.UpdatedAt,
	).Error
}

func (r *repo) FindTransactionByGatewayID(ctx context.Context, db *gorm.DB, gateway domain.GatewayName, gatewayTransactionID string) (*domain.PaymentTransaction, error) {
	var item domain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM payment_transactions
		 WHERE gateway = ? AND gateway_transaction_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		gateway,
		gatewayTransactionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateTransactionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.PaymentStatus, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		updatedAt,
		id,
	).Error
}

func (r *repo) InsertWebhookEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_webhook_events (
			id, gateway, event_id, event_type, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (gateway, event_id) DO NOTHING`,
		event.ID,
		event.Gateway,
		event.EventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindWebhookEvent(ctx context.Context, db *gorm.DB, gateway domain.GatewayName, eventID string) (*domain.WebhookEventRecord, error) {
	var item domain.WebhookEventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, gateway, event_id, event_type, payload, received_at, processed_at
		 FROM payment_webhook_events
		 WHERE gateway = ? AND event_id = ?
		 LIMIT 1`,
		gateway,
		eventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkWebhookEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_webhook_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}

// Package paymenttest provides an in-memory store for payment tests.
package paymenttest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ddl mirrors the postgres migration with sqlite column types.
var ddl = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT
	)`,
	`CREATE TABLE subscription_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		monthly_price NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		features TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE subscriptions (
		id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		plan_name TEXT NOT NULL DEFAULT '',
		plan_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		is_active BOOLEAN NOT NULL,
		billing_cycle TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		next_billing_date TIMESTAMP,
		current_period_start TIMESTAMP,
		current_period_end TIMESTAMP,
		gateway TEXT NOT NULL,
		gateway_subscription_id TEXT NOT NULL DEFAULT '',
		gateway_customer_id TEXT NOT NULL DEFAULT '',
		gateway_plan_id TEXT NOT NULL DEFAULT '',
		trial_start TIMESTAMP,
		trial_end TIMESTAMP,
		is_trial_active BOOLEAN NOT NULL DEFAULT 0,
		will_cancel_at_period_end BOOLEAN NOT NULL DEFAULT 0,
		canceled_at TIMESTAMP,
		cancel_reason TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_subscriptions_user_active
		ON subscriptions (user_id)
		WHERE is_active AND status IN ('active', 'trialing')`,
	`CREATE TABLE payment_transactions (
		id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		transaction_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		gateway TEXT NOT NULL,
		gateway_transaction_id TEXT NOT NULL DEFAULT '',
		gateway_response TEXT,
		payment_method TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payment_transactions_gateway_ref
		ON payment_transactions (gateway, gateway_transaction_id)
		WHERE gateway_transaction_id <> ''`,
	`CREATE TABLE gateway_customers (
		id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL,
		gateway TEXT NOT NULL,
		gateway_customer_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, gateway)
	)`,
	`CREATE TABLE payment_webhook_events (
		id INTEGER PRIMARY KEY,
		gateway TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		UNIQUE (gateway, event_id)
	)`,
}

// OpenDB returns a private in-memory database with the payment schema.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func SeedUser(t *testing.T, db *gorm.DB, id, email, name string) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO users (id, email, name, phone) VALUES (?, ?, ?, ?)`,
		id, email, name, "",
	).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func SeedPlan(t *testing.T, db *gorm.DB, id, name string, price decimal.Decimal, currency string) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO subscription_plans (id, name, description, monthly_price, currency, is_active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, name+" plan", price, currency, true,
	).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
}

func CountRows(t *testing.T, db *gorm.DB, table schema.Tabler) int64 {
	t.Helper()
	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM " + table.TableName()).Scan(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table.TableName(), err)
	}
	return count
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/paymenttest"
	"github.com/smallbiznis/paycore/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return node
}

func newSubscription(node *snowflake.Node, userID string, status domain.SubscriptionStatus, active bool) *domain.Subscription {
	now := time.Now().UTC().Truncate(time.Second)
	trialEnd := now.AddDate(0, 0, 7)
	return &domain.Subscription{
		ID:                    node.Generate(),
		UserID:                userID,
		PlanID:                "pro-monthly",
		PlanName:              "Pro",
		Status:                status,
		IsActive:              active,
		BillingCycle:          domain.BillingCycleMonthly,
		Amount:                decimal.RequireFromString("29.99"),
		Currency:              "USD",
		NextBillingDate:       &trialEnd,
		Gateway:               domain.GatewayStripe,
		GatewaySubscriptionID: "sub_" + userID,
		GatewayCustomerID:     "cus_" + userID,
		TrialStart:            &now,
		TrialEnd:              &trialEnd,
		IsTrialActive:         true,
		Metadata:              datatypes.JSON(`{"price_id":"price_1"}`),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func TestFindUserAndPlan(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	paymenttest.SeedUser(t, conn, "user_1", "ada@example.com", "Ada Lovelace")
	paymenttest.SeedPlan(t, conn, "pro-monthly", "Pro", decimal.RequireFromString("29.99"), "USD")
	r := Provide()
	ctx := context.Background()

	user, err := r.FindUser(ctx, conn, "user_1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ada@example.com", user.Email)

	missing, err := r.FindUser(ctx, conn, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	plan, err := r.FindPlan(ctx, conn, "pro-monthly")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.True(t, plan.MonthlyPrice.Equal(decimal.RequireFromString("29.99")), plan.MonthlyPrice.String())
	assert.Equal(t, "USD", plan.Currency)
	assert.True(t, plan.IsActive)
}

func TestSubscriptionRoundTrip(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	node := newNode(t)

	sub := newSubscription(node, "user_1", domain.SubscriptionStatusTrialing, true)
	require.NoError(t, r.InsertSubscription(ctx, conn, sub))

	active, err := r.FindActiveSubscription(ctx, conn, "user_1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, sub.ID, active.ID)
	assert.Equal(t, domain.SubscriptionStatusTrialing, active.Status)
	assert.True(t, active.Amount.Equal(sub.Amount))
	require.NotNil(t, active.TrialEnd)
	assert.WithinDuration(t, *sub.TrialEnd, *active.TrialEnd, time.Second)
	assert.JSONEq(t, `{"price_id":"price_1"}`, string(active.Metadata))

	byGateway, err := r.FindSubscriptionByGatewayID(ctx, conn, domain.GatewayStripe, "sub_user_1")
	require.NoError(t, err)
	require.NotNil(t, byGateway)
	assert.Equal(t, sub.ID, byGateway.ID)

	none, err := r.FindSubscriptionByGatewayID(ctx, conn, domain.GatewayPaystack, "sub_user_1")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUpdateSubscription(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	node := newNode(t)

	sub := newSubscription(node, "user_1", domain.SubscriptionStatusActive, true)
	require.NoError(t, r.InsertSubscription(ctx, conn, sub))

	now := time.Now().UTC()
	sub.Status = domain.SubscriptionStatusCanceled
	sub.IsActive = false
	sub.CanceledAt = &now
	sub.CancelReason = "user_requested"
	sub.UpdatedAt = now
	require.NoError(t, r.UpdateSubscription(ctx, conn, sub))

	stored, err := r.FindSubscription(ctx, conn, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.SubscriptionStatusCanceled, stored.Status)
	assert.False(t, stored.IsActive)
	require.NotNil(t, stored.CanceledAt)
	assert.Equal(t, "user_requested", stored.CancelReason)

	active, err := r.FindActiveSubscription(ctx, conn, "user_1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestActiveSubscriptionIsUniquePerUser(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	node := newNode(t)

	require.NoError(t, r.InsertSubscription(ctx, conn, newSubscription(node, "user_1", domain.SubscriptionStatusTrialing, true)))

	err := r.InsertSubscription(ctx, conn, newSubscription(node, "user_1", domain.SubscriptionStatusActive, true))
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err), err.Error())

	// Canceled history rows do not count against the index.
	require.NoError(t, r.InsertSubscription(ctx, conn, newSubscription(node, "user_1", domain.SubscriptionStatusCanceled, false)))
	require.NoError(t, r.InsertSubscription(ctx, conn, newSubscription(node, "user_2", domain.SubscriptionStatusActive, true)))
}

func TestGatewayCustomerInsertIsIdempotent(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	node := newNode(t)

	first := &domain.GatewayCustomer{ID: node.Generate(), UserID: "user_1", Gateway: domain.GatewayStripe, GatewayCustomerID: "cus_1", CreatedAt: time.Now().UTC()}
	inserted, err := r.InsertGatewayCustomer(ctx, conn, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	second := &domain.GatewayCustomer{ID: node.Generate(), UserID: "user_1", Gateway: domain.GatewayStripe, GatewayCustomerID: "cus_2", CreatedAt: time.Now().UTC()}
	inserted, err = r.InsertGatewayCustomer(ctx, conn, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := r.FindGatewayCustomer(ctx, conn, "user_1", domain.GatewayStripe)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "cus_1", found.GatewayCustomerID)

	other, err := r.FindGatewayCustomer(ctx, conn, "user_1", domain.GatewayPaystack)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestTransactionLifecycle(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	node := newNode(t)
	now := time.Now().UTC()

	tx := &domain.PaymentTransaction{
		ID:                   node.Generate(),
		UserID:               "user_1",
		TransactionID:        "pi_1",
		Amount:               decimal.RequireFromString("10.50"),
		Currency:             "USD",
		Status:               domain.PaymentStatusPending,
		Gateway:              domain.GatewayStripe,
		GatewayTransactionID: "pi_1",
		GatewayResponse:      datatypes.JSON(`{"id":"pi_1"}`),
		PaymentMethod:        domain.PaymentMethodCard,
		Description:          "application fee",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	require.NoError(t, r.InsertTransaction(ctx, conn, tx))
	require.NoError(t, r.UpdateTransactionStatus(ctx, conn, tx.ID, domain.PaymentStatusCompleted, now.Add(time.Minute)))

	stored, err := r.FindTransactionByGatewayID(ctx, conn, domain.GatewayStripe, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.PaymentStatusCompleted, stored.Status)
	assert.True(t, stored.Amount.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, domain.PaymentMethodCard, stored.PaymentMethod)

	missing, err := r.FindTransactionByGatewayID(ctx, conn, domain.GatewayPaystack, "pi_1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTransactionGatewayReferenceIsUnique(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	node := newNode(t)
	now := time.Now().UTC()

	newTx := func(gateway domain.GatewayName, ref string) *domain.PaymentTransaction {
		return &domain.PaymentTransaction{
			ID:                   node.Generate(),
			TransactionID:        "txn_" + node.Generate().String(),
			Amount:               decimal.NewFromInt(5),
			Currency:             "USD",
			Status:               domain.PaymentStatusCompleted,
			Gateway:              gateway,
			GatewayTransactionID: ref,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
	}

	require.NoError(t, r.InsertTransaction(ctx, conn, newTx(domain.GatewayStripe, "ch_1")))
	err := r.InsertTransaction(ctx, conn, newTx(domain.GatewayStripe, "ch_1"))
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err), err.Error())

	// The same reference on another gateway, and rows without one, are fine.
	require.NoError(t, r.InsertTransaction(ctx, conn, newTx(domain.GatewayPaystack, "ch_1")))
	require.NoError(t, r.InsertTransaction(ctx, conn, newTx(domain.GatewayStripe, "")))
	require.NoError(t, r.InsertTransaction(ctx, conn, newTx(domain.GatewayStripe, "")))
}

func TestWebhookEventDedup(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	node := newNode(t)

	record := func() *domain.WebhookEventRecord {
		return &domain.WebhookEventRecord{
			ID:         node.Generate(),
			Gateway:    domain.GatewayStripe,
			EventID:    "evt_1",
			EventType:  "invoice.payment_succeeded",
			Payload:    datatypes.JSON(`{"id":"evt_1"}`),
			ReceivedAt: time.Now().UTC(),
		}
	}

	first := record()
	inserted, err := r.InsertWebhookEvent(ctx, conn, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = r.InsertWebhookEvent(ctx, conn, record())
	require.NoError(t, err)
	assert.False(t, inserted)

	stored, err := r.FindWebhookEvent(ctx, conn, domain.GatewayStripe, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, first.ID, stored.ID)
	assert.Nil(t, stored.ProcessedAt)

	require.NoError(t, r.MarkWebhookEventProcessed(ctx, conn, first.ID, time.Now().UTC()))
	stored, err = r.FindWebhookEvent(ctx, conn, domain.GatewayStripe, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, stored.ProcessedAt)

	// The same id from another provider is a different event.
	other := record()
	other.Gateway = domain.GatewayPaystack
	inserted, err = r.InsertWebhookEvent(ctx, conn, other)
	require.NoError(t, err)
	assert.True(t, inserted)
}

package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/domain/mocks"
	"github.com/smallbiznis/paycore/internal/payment/gateway"
	"github.com/smallbiznis/paycore/internal/payment/lock"
	"github.com/smallbiznis/paycore/internal/payment/paymenttest"
	paymentrepo "github.com/smallbiznis/paycore/internal/payment/repository"
	paymentservice "github.com/smallbiznis/paycore/internal/payment/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *paymentservice.Service
	db       *gorm.DB
	repo     domain.Repository
	node     *snowflake.Node
	clock    *clock.FakeClock
	stripe   *mocks.MockGateway
	paystack *mocks.MockGateway
}

type fixtureOption func(*paymentservice.Params)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	stripeGW := mocks.NewMockGateway(ctrl)
	stripeGW.EXPECT().Name().Return(domain.GatewayStripe).AnyTimes()
	paystackGW := mocks.NewMockGateway(ctrl)
	paystackGW.EXPECT().Name().Return(domain.GatewayPaystack).AnyTimes()

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	f := &fixture{
		db:       paymenttest.OpenDB(t),
		repo:     paymentrepo.Provide(),
		node:     node,
		clock:    clock.NewFakeClock(testNow),
		stripe:   stripeGW,
		paystack: paystackGW,
	}
	p := paymentservice.Params{
		DB:       f.db,
		Log:      zaptest.NewLogger(t),
		GenID:    node,
		Repo:     f.repo,
		Gateways: gateway.NewRegistry(stripeGW, paystackGW),
		Router:   gateway.NewRouter(nil),
		Clock:    f.clock,
		Config: config.Config{Payment: config.PaymentConfig{
			TrialDays:       7,
			DefaultCurrency: "USD",
		}},
	}
	for _, opt := range opts {
		opt(&p)
	}
	f.svc = paymentservice.NewService(p)
	return f
}

func (f *fixture) insertSubscription(t *testing.T, sub *domain.Subscription) *domain.Subscription {
	t.Helper()
	if sub.ID == 0 {
		sub.ID = f.node.Generate()
	}
	if sub.BillingCycle == "" {
		sub.BillingCycle = domain.BillingCycleMonthly
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = testNow
		sub.UpdatedAt = testNow
	}
	require.NoError(t, f.repo.InsertSubscription(context.Background(), f.db, sub))
	return sub
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *domain.Subscription {
	t.Helper()
	sub, err := f.repo.FindSubscription(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func trialResponse(now time.Time, days int) *domain.SubscriptionResponse {
	trialEnd := now.AddDate(0, 0, days)
	return &domain.SubscriptionResponse{
		Success:               true,
		GatewaySubscriptionID: "sub_123",
		GatewayCustomerID:     "cus_123",
		GatewayPlanID:         "price_123",
		Status:                domain.SubscriptionStatusTrialing,
		NextBillingDate:       trialEnd,
		CurrentPeriodStart:    now,
		CurrentPeriodEnd:      trialEnd,
		TrialStart:            &now,
		TrialEnd:              &trialEnd,
	}
}

func TestCreateSubscriptionEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paymenttest.SeedUser(t, f.db, "user-1", "ada@example.com", "Ada Lovelace")
	paymenttest.SeedPlan(t, f.db, "pro-monthly", "Pro", decimal.RequireFromString("29.99"), "USD")

	f.stripe.EXPECT().CreateCustomer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, info domain.CustomerInfo) (string, error) {
			assert.Equal(t, "user-1", info.UserID)
			assert.Equal(t, "ada@example.com", info.Email)
			return "cus_123", nil
		}).Times(1)
	f.stripe.EXPECT().CreateSubscription(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domain.SubscriptionRequest) (*domain.SubscriptionResponse, error) {
			assert.Equal(t, "cus_123", req.CustomerID)
			assert.Equal(t, 7, req.TrialDays)
			assert.True(t, req.Amount.Equal(decimal.RequireFromString("29.99")))
			assert.Equal(t, "USD", req.Currency)
			assert.Equal(t, domain.BillingCycleMonthly, req.BillingCycle)
			return trialResponse(testNow, req.TrialDays), nil
		}).Times(1)

	sub, err := f.svc.CreateSubscription(ctx, "user-1", "pro-monthly", domain.PaymentMethodCard)
	require.NoError(t, err)
	assert.Equal(t, domain.GatewayStripe, sub.Gateway)
	assert.Equal(t, domain.SubscriptionStatusTrialing, sub.Status)
	assert.True(t, sub.IsActive)
	assert.True(t, sub.IsTrialActive)
	require.NotNil(t, sub.TrialEnd)
	assert.WithinDuration(t, testNow.AddDate(0, 0, 7), *sub.TrialEnd, time.Second)

	stored := f.reload(t, sub.ID)
	assert.True(t, stored.Amount.Equal(decimal.RequireFromString("29.99")))
	assert.Equal(t, "USD", stored.Currency)
	assert.Equal(t, domain.SubscriptionStatusTrialing, stored.Status)
	assert.True(t, stored.IsTrialActive)
	assert.Equal(t, "sub_123", stored.GatewaySubscriptionID)
	require.NotNil(t, stored.TrialEnd)
	assert.WithinDuration(t, testNow.AddDate(0, 0, 7), *stored.TrialEnd, time.Second)

	cached, err := f.repo.FindGatewayCustomer(ctx, f.db, "user-1", domain.GatewayStripe)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "cus_123", cached.GatewayCustomerID)

	_, err = f.svc.CreateSubscription(ctx, "user-1", "pro-monthly", domain.PaymentMethodCard)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "active subscription")
}

func TestCreateSubscriptionReusesCachedCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paymenttest.SeedUser(t, f.db, "user-1", "ada@example.com", "Ada Lovelace")
	paymenttest.SeedPlan(t, f.db, "pro-monthly", "Pro", decimal.RequireFromString("29.99"), "USD")
	_, err := f.repo.InsertGatewayCustomer(ctx, f.db, &domain.GatewayCustomer{
		ID:                f.node.Generate(),
		UserID:            "user-1",
		Gateway:           domain.GatewayStripe,
		GatewayCustomerID: "cus_existing",
		CreatedAt:         testNow,
	})
	require.NoError(t, err)

	f.stripe.EXPECT().CreateSubscription(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domain.SubscriptionRequest) (*domain.SubscriptionResponse, error) {
			assert.Equal(t, "cus_existing", req.CustomerID)
			resp := trialResponse(testNow, req.TrialDays)
			resp.GatewayCustomerID = req.CustomerID
			return resp, nil
		})

	sub, err := f.svc.CreateSubscription(ctx, "user-1", "pro-monthly", "")
	require.NoError(t, err)
	assert.Equal(t, "cus_existing", sub.GatewayCustomerID)
}

func TestCreateSubscriptionRoutesByPlanCurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paymenttest.SeedUser(t, f.db, "user-ng", "chi@example.com", "Chi Okafor")
	paymenttest.SeedPlan(t, f.db, "pro-ngn", "Pro NGN", decimal.NewFromInt(5000), "NGN")

	f.paystack.EXPECT().CreateCustomer(gomock.Any(), gomock.Any()).Return("CUS_abc", nil)
	f.paystack.EXPECT().CreateSubscription(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domain.SubscriptionRequest) (*domain.SubscriptionResponse, error) {
			resp := trialResponse(testNow, req.TrialDays)
			resp.GatewaySubscriptionID = "SUB_abc"
			resp.Metadata = map[string]string{"email_token": "tok_1"}
			return resp, nil
		})

	sub, err := f.svc.CreateSubscription(ctx, "user-ng", "pro-ngn", domain.PaymentMethodCard)
	require.NoError(t, err)
	assert.Equal(t, domain.GatewayPaystack, sub.Gateway)
	assert.Equal(t, "NGN", sub.Currency)

	var metadata map[string]string
	require.NoError(t, json.Unmarshal(f.reload(t, sub.ID).Metadata, &metadata))
	assert.Equal(t, "tok_1", metadata["email_token"])
}

func TestCreateSubscriptionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paymenttest.SeedUser(t, f.db, "user-1", "ada@example.com", "Ada Lovelace")
	paymenttest.SeedPlan(t, f.db, "pro-monthly", "Pro", decimal.RequireFromString("29.99"), "USD")

	cases := []struct {
		name   string
		userID string
		planID string
		want   string
	}{
		{name: "missing user", userID: "nobody", planID: "pro-monthly", want: "user not found"},
		{name: "missing plan", userID: "user-1", planID: "gold", want: "plan not found"},
		{name: "empty user", userID: " ", planID: "pro-monthly", want: "user id is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateSubscription(ctx, tc.userID, tc.planID, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCreateSubscriptionUnconfiguredGateway(t *testing.T) {
	f := newFixture(t, func(p *paymentservice.Params) {
		p.Gateways = gateway.NewRegistry()
	})
	paymenttest.SeedUser(t, f.db, "user-ng", "chi@example.com", "Chi Okafor")
	paymenttest.SeedPlan(t, f.db, "pro-ngn", "Pro NGN", decimal.NewFromInt(5000), "NGN")

	_, err := f.svc.CreateSubscription(context.Background(), "user-ng", "pro-ngn", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	var perr *domain.PaymentError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.GatewayPaystack, perr.Gateway)
}

func TestCreateSubscriptionDuplicateInsertIsValidationError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paymenttest.SeedUser(t, f.db, "user-1", "ada@example.com", "Ada Lovelace")
	paymenttest.SeedPlan(t, f.db, "pro-monthly", "Pro", decimal.RequireFromString("29.99"), "USD")

	f.stripe.EXPECT().CreateCustomer(gomock.Any(), gomock.Any()).Return("cus_123", nil)
	f.stripe.EXPECT().CreateSubscription(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domain.SubscriptionRequest) (*domain.SubscriptionResponse, error) {
			// a concurrent request wins the race while the provider call is in flight
			f.insertSubscription(t, &domain.Subscription{
				UserID:   "user-1",
				PlanID:   "pro-monthly",
				Status:   domain.SubscriptionStatusActive,
				IsActive: true,
				Amount:   decimal.RequireFromString("29.99"),
				Currency: "USD",
				Gateway:  domain.GatewayStripe,
			})
			return trialResponse(testNow, req.TrialDays), nil
		})
	f.stripe.EXPECT().CancelSubscription(gomock.Any(), domain.CancelSubscriptionRequest{
		GatewaySubscriptionID: "sub_123",
		CancelAtPeriodEnd:     false,
	}).Return(&domain.CancelSubscriptionResponse{Success: true}, nil)

	_, err := f.svc.CreateSubscription(ctx, "user-1", "pro-monthly", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "active subscription")
	assert.Equal(t, int64(1), paymenttest.CountRows(t, f.db, domain.Subscription{}))
}

func TestCreateSubscriptionCancelsPaystackOrphanWithEmailToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paymenttest.SeedUser(t, f.db, "user-ng", "chi@example.com", "Chi Okafor")
	paymenttest.SeedPlan(t, f.db, "pro-monthly-ngn", "Pro", decimal.NewFromInt(15000), "NGN")

	f.paystack.EXPECT().CreateCustomer(gomock.Any(), gomock.Any()).Return("CUS_1", nil)
	f.paystack.EXPECT().CreateSubscription(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domain.SubscriptionRequest) (*domain.SubscriptionResponse, error) {
			f.insertSubscription(t, &domain.Subscription{
				UserID:   "user-ng",
				PlanID:   "pro-monthly-ngn",
				Status:   domain.SubscriptionStatusActive,
				IsActive: true,
				Amount:   decimal.NewFromInt(15000),
				Currency: "NGN",
				Gateway:  domain.GatewayPaystack,
			})
			resp := trialResponse(testNow, req.TrialDays)
			resp.GatewaySubscriptionID = "SUB_ng"
			resp.Metadata = map[string]string{"email_token": "tok_ng"}
			return resp, nil
		})
	// the provider refusing the cancel must not mask the original failure
	f.paystack.EXPECT().CancelSubscription(gomock.Any(), domain.CancelSubscriptionRequest{
		GatewaySubscriptionID: "SUB_ng",
		Token:                 "tok_ng",
	}).Return(nil, domain.NewGatewayError(domain.GatewayPaystack, "disable failed", nil, nil))

	_, err := f.svc.CreateSubscription(ctx, "user-ng", "pro-monthly-ngn", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, int64(1), paymenttest.CountRows(t, f.db, domain.Subscription{}))
}

func TestCreateSubscriptionWrapsUnexpectedErrors(t *testing.T) {
	f := newFixture(t)
	paymenttest.SeedUser(t, f.db, "user-1", "ada@example.com", "Ada Lovelace")
	paymenttest.SeedPlan(t, f.db, "pro-monthly", "Pro", decimal.RequireFromString("29.99"), "USD")

	boom := errors.New("connection reset")
	f.stripe.EXPECT().CreateCustomer(gomock.Any(), gomock.Any()).Return("", boom)

	_, err := f.svc.CreateSubscription(context.Background(), "user-1", "pro-monthly", "")
	require.Error(t, err)

	var perr *domain.PaymentError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.CodeGateway, perr.Code)
	assert.Equal(t, domain.GatewayUnknown, perr.Gateway)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), paymenttest.CountRows(t, f.db, domain.Subscription{}))
}

func TestCreateSubscriptionPassesGatewayErrorsThrough(t *testing.T) {
	f := newFixture(t)
	paymenttest.SeedUser(t, f.db, "user-1", "ada@example.com", "Ada Lovelace")
	paymenttest.SeedPlan(t, f.db, "pro-monthly", "Pro", decimal.RequireFromString("29.99"), "USD")

	gwErr := domain.NewGatewayError(domain.GatewayStripe, "create subscription failed", errors.New("card_declined"), nil)
	f.stripe.EXPECT().CreateCustomer(gomock.Any(), gomock.Any()).Return("cus_123", nil)
	f.stripe.EXPECT().CreateSubscription(gomock.Any(), gomock.Any()).Return(nil, gwErr)

	_, err := f.svc.CreateSubscription(context.Background(), "user-1", "pro-monthly", "")
	require.Error(t, err)
	if err != gwErr {
		t.Fatalf("expected the adapter error unchanged, got %v", err)
	}
}

func TestCreateSubscriptionLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := lock.NewLocker(client, time.Minute, zaptest.NewLogger(t))

	f := newFixture(t, func(p *paymentservice.Params) {
		p.Locker = locker
	})
	paymenttest.SeedUser(t, f.db, "user-1", "ada@example.com", "Ada Lovelace")
	paymenttest.SeedPlan(t, f.db, "pro-monthly", "Pro", decimal.RequireFromString("29.99"), "USD")

	release, err := locker.Acquire(context.Background(), lock.UserKey("user-1"))
	require.NoError(t, err)

	_, err = f.svc.CreateSubscription(context.Background(), "user-1", "pro-monthly", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "in progress")

	release()
	f.stripe.EXPECT().CreateCustomer(gomock.Any(), gomock.Any()).Return("cus_123", nil)
	f.stripe.EXPECT().CreateSubscription(gomock.Any(), gomock.Any()).Return(trialResponse(testNow, 7), nil)
	_, err = f.svc.CreateSubscription(context.Background(), "user-1", "pro-monthly", "")
	require.NoError(t, err)
	assert.False(t, mr.Exists(lock.UserKey("user-1")))
}

func TestCancelSubscriptionAtPeriodEnd(t *testing.T) {
	f := newFixture(t)
	sub := f.insertSubscription(t, &domain.Subscription{
		UserID:                "user-1",
		PlanID:                "pro-monthly",
		Status:                domain.SubscriptionStatusActive,
		IsActive:              true,
		Amount:                decimal.RequireFromString("29.99"),
		Currency:              "USD",
		Gateway:               domain.GatewayStripe,
		GatewaySubscriptionID: "sub_123",
	})

	f.stripe.EXPECT().CancelSubscription(gomock.Any(), domain.CancelSubscriptionRequest{
		GatewaySubscriptionID: "sub_123",
		CancelAtPeriodEnd:     true,
	}).Return(&domain.CancelSubscriptionResponse{
		Success:           true,
		Status:            domain.SubscriptionStatusActive,
		CancelAtPeriodEnd: true,
	}, nil)

	got, err := f.svc.CancelSubscription(context.Background(), sub.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, got.Status)
	assert.True(t, got.IsActive)
	assert.True(t, got.WillCancelAtPeriodEnd)

	stored := f.reload(t, sub.ID)
	assert.Equal(t, domain.SubscriptionStatusActive, stored.Status)
	assert.True(t, stored.IsActive)
	assert.True(t, stored.WillCancelAtPeriodEnd)
	assert.Nil(t, stored.CanceledAt)
}

func TestCancelSubscriptionImmediately(t *testing.T) {
	f := newFixture(t)
	sub := f.insertSubscription(t, &domain.Subscription{
		UserID:                "user-ng",
		PlanID:                "pro-ngn",
		Status:                domain.SubscriptionStatusTrialing,
		IsActive:              true,
		IsTrialActive:         true,
		Amount:                decimal.NewFromInt(5000),
		Currency:              "NGN",
		Gateway:               domain.GatewayPaystack,
		GatewaySubscriptionID: "SUB_abc",
		Metadata:              datatypes.JSON(`{"email_token":"tok_1"}`),
	})

	f.paystack.EXPECT().CancelSubscription(gomock.Any(), domain.CancelSubscriptionRequest{
		GatewaySubscriptionID: "SUB_abc",
		Token:                 "tok_1",
	}).Return(&domain.CancelSubscriptionResponse{
		Success: true,
		Status:  domain.SubscriptionStatusCanceled,
	}, nil)

	got, err := f.svc.CancelSubscription(context.Background(), sub.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, got.Status)
	assert.False(t, got.IsActive)

	stored := f.reload(t, sub.ID)
	assert.Equal(t, domain.SubscriptionStatusCanceled, stored.Status)
	assert.False(t, stored.IsActive)
	assert.False(t, stored.IsTrialActive)
	require.NotNil(t, stored.CanceledAt)
	assert.WithinDuration(t, testNow, *stored.CanceledAt, time.Second)

	_, err = f.svc.CancelSubscription(context.Background(), sub.ID, false)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCancelSubscriptionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CancelSubscription(context.Background(), f.node.Generate(), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "subscription not found")
}

func TestUpdateSubscriptionMergesPresentFields(t *testing.T) {
	f := newFixture(t)
	sub := f.insertSubscription(t, &domain.Subscription{
		UserID:                "user-1",
		PlanID:                "pro-monthly",
		PlanName:              "Pro",
		Status:                domain.SubscriptionStatusActive,
		IsActive:              true,
		Amount:                decimal.RequireFromString("29.99"),
		Currency:              "USD",
		Gateway:               domain.GatewayStripe,
		GatewaySubscriptionID: "sub_123",
		GatewayPlanID:         "price_123",
		Metadata:              datatypes.JSON(`{"source":"web"}`),
	})

	amount := decimal.RequireFromString("39.99")
	f.stripe.EXPECT().UpdateSubscription(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domain.UpdateSubscriptionRequest) (*domain.UpdateSubscriptionResponse, error) {
			assert.Equal(t, "sub_123", req.GatewaySubscriptionID)
			assert.Equal(t, "price_123", req.GatewayPlanID)
			assert.Empty(t, req.BillingCycle)
			require.NotNil(t, req.Amount)
			assert.True(t, req.Amount.Equal(amount))
			return &domain.UpdateSubscriptionResponse{
				Success:       true,
				Status:        domain.SubscriptionStatusActive,
				GatewayPlanID: "price_456",
				ChangedFields: []string{"amount", "metadata"},
			}, nil
		})

	got, err := f.svc.UpdateSubscription(context.Background(), sub.ID, paymentservice.SubscriptionUpdate{
		Amount:   &amount,
		Metadata: map[string]string{"coupon": "spring"},
	})
	require.NoError(t, err)
	assert.Equal(t, "price_456", got.GatewayPlanID)

	stored := f.reload(t, sub.ID)
	assert.True(t, stored.Amount.Equal(amount))
	assert.Equal(t, domain.BillingCycleMonthly, stored.BillingCycle)
	assert.Equal(t, "price_456", stored.GatewayPlanID)

	var metadata map[string]string
	require.NoError(t, json.Unmarshal(stored.Metadata, &metadata))
	assert.Equal(t, map[string]string{"source": "web", "coupon": "spring"}, metadata)
}

func TestUpdateSubscriptionRejectsEmptyUpdate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateSubscription(context.Background(), f.node.Generate(), paymentservice.SubscriptionUpdate{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	negative := decimal.NewFromInt(-1)
	_, err = f.svc.UpdateSubscription(context.Background(), f.node.Generate(), paymentservice.SubscriptionUpdate{Amount: &negative})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestProcessPaymentStoresTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paymenttest.SeedUser(t, f.db, "user-1", "ada@example.com", "Ada Lovelace")

	f.stripe.EXPECT().CreateCustomer(gomock.Any(), gomock.Any()).Return("cus_123", nil)
	f.stripe.EXPECT().ProcessPayment(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domain.PaymentRequest) (*domain.PaymentResponse, error) {
			assert.Equal(t, "USD", req.Currency)
			assert.Equal(t, "cus_123", req.CustomerID)
			assert.Equal(t, "Application fee", req.Description)
			return &domain.PaymentResponse{
				Success:              true,
				TransactionID:        "pi_123",
				GatewayTransactionID: "pi_123",
				Status:               domain.PaymentStatusPending,
				Amount:               req.Amount,
				Currency:             req.Currency,
				GatewayResponse:      json.RawMessage(`{"id":"pi_123"}`),
				Metadata:             map[string]string{"client_secret": "pi_123_secret"},
			}, nil
		})

	result, err := f.svc.ProcessPayment(ctx, "user-1", decimal.RequireFromString("25.00"), "Application fee", domain.PaymentMethodCard)
	require.NoError(t, err)
	assert.Equal(t, "pi_123_secret", result.NextAction["client_secret"])

	stored, err := f.repo.FindTransactionByGatewayID(ctx, f.db, domain.GatewayStripe, "pi_123")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, "USD", stored.Currency)
	assert.Equal(t, domain.PaymentStatusPending, stored.Status)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(25)))
	assert.NotContains(t, string(stored.Metadata), "client_secret")
}

func TestProcessPaymentValidation(t *testing.T) {
	f := newFixture(t)
	paymenttest.SeedUser(t, f.db, "user-1", "ada@example.com", "Ada Lovelace")

	_, err := f.svc.ProcessPayment(context.Background(), "user-1", decimal.Zero, "fee", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.ProcessPayment(context.Background(), "ghost", decimal.NewFromInt(5), "fee", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}


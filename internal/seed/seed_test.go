package seed

import (
	"context"
	"testing"

	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/paymenttest"
	"github.com/smallbiznis/paycore/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePlansIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := paymenttest.OpenDB(t)

	n, err := EnsurePlans(ctx, db, DefaultPlans())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultPlans()), n)

	n, err = EnsurePlans(ctx, db, DefaultPlans())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(len(DefaultPlans())), paymenttest.CountRows(t, db, domain.SubscriptionPlan{}))

	plan, err := repository.Provide().FindPlan(ctx, db, "pro-monthly")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "USD", plan.Currency)
	assert.Equal(t, "29.99", plan.MonthlyPrice.String())
	assert.True(t, plan.IsActive)
}

func TestEnsurePlansRejectsMissingID(t *testing.T) {
	db := paymenttest.OpenDB(t)
	_, err := EnsurePlans(context.Background(), db, []domain.SubscriptionPlan{{Name: "nameless"}})
	assert.Error(t, err)
	assert.Equal(t, int64(0), paymenttest.CountRows(t, db, domain.SubscriptionPlan{}))
}

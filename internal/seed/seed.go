package seed

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultPlans is the starter catalog used in development environments.
func DefaultPlans() []domain.SubscriptionPlan {
	return []domain.SubscriptionPlan{
		{
			ID:           "basic-monthly",
			Name:         "Basic",
			Description:  "Single application with standard review",
			MonthlyPrice: decimal.RequireFromString("9.99"),
			Currency:     "USD",
			Features:     datatypes.JSON(`["applications:1"]`),
			IsActive:     true,
		},
		{
			ID:           "pro-monthly",
			Name:         "Pro",
			Description:  "Unlimited applications with document review",
			MonthlyPrice: decimal.RequireFromString("29.99"),
			Currency:     "USD",
			Features:     datatypes.JSON(`["applications:unlimited","document_review"]`),
			IsActive:     true,
		},
		{
			ID:           "pro-monthly-ngn",
			Name:         "Pro (NGN)",
			Description:  "Unlimited applications with document review",
			MonthlyPrice: decimal.NewFromInt(15000),
			Currency:     "NGN",
			Features:     datatypes.JSON(`["applications:unlimited","document_review"]`),
			IsActive:     true,
		},
	}
}

// EnsurePlans inserts missing plans and leaves existing rows untouched.
// It returns how many plans were inserted.
func EnsurePlans(ctx context.Context, db *gorm.DB, plans []domain.SubscriptionPlan) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}

	inserted := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range plans {
			if plan.ID == "" {
				return errors.New("seed plan id is required")
			}
			features := plan.Features
			if len(features) == 0 {
				features = datatypes.JSON("[]")
			}
			res := tx.WithContext(ctx).Exec(
				`INSERT INTO subscription_plans (id, name, description, monthly_price, currency, features, is_active)
				 VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (id) DO NOTHING`,
				plan.ID,
				plan.Name,
				plan.Description,
				plan.MonthlyPrice,
				plan.Currency,
				features,
				plan.IsActive,
			)
			if res.Error != nil {
				return res.Error
			}
			inserted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

package stripe

import (
	"context"
	"strings"

	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/saga"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/zap"
)

// CreateSubscription runs customer, product, price and subscription creation
// in order. Objects created before a failing step are removed again.
func (a *Adapter) CreateSubscription(ctx context.Context, req domain.SubscriptionRequest) (*domain.SubscriptionResponse, error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError(domain.GatewayStripe, "amount must be positive")
	}

	tx := saga.New(a.log, "stripe.create_subscription")
	fail := func(err error) (*domain.SubscriptionResponse, error) {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			a.log.Warn("stripe objects left behind", zap.Strings("steps", tx.Completed()), zap.Error(rbErr))
		}
		return nil, err
	}

	customerID := req.CustomerID
	if customerID == "" {
		customerID, err = a.createCustomer(ctx, api, req.Customer)
		if err != nil {
			return nil, err
		}
		tx.Record("customer", func(ctx context.Context) error {
			params := &stripe.CustomerParams{}
			params.Context = ctx
			_, err := api.Customers.Del(customerID, params)
			return err
		})
	}

	productParams := &stripe.ProductParams{
		Name: stripe.String(req.PlanName),
	}
	productParams.Context = ctx
	if req.Description != "" {
		productParams.Description = stripe.String(req.Description)
	}
	productParams.AddMetadata("plan_id", req.PlanID)
	product, err := api.Products.New(productParams)
	if err != nil {
		return fail(gatewayError("create product failed", err, map[string]any{"plan_id": req.PlanID}))
	}
	tx.Record("product", func(ctx context.Context) error {
		return archiveProduct(ctx, api, product.ID)
	})

	price, err := a.createPrice(ctx, api, product.ID, req.Amount.String(), domain.ToMinorUnits(req.Amount), req.Currency, req.BillingCycle)
	if err != nil {
		return fail(err)
	}
	tx.Record("price", func(ctx context.Context) error {
		return archivePrice(ctx, api, price.ID)
	})

	subParams := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(price.ID)},
		},
	}
	subParams.Context = ctx
	if req.TrialDays > 0 {
		subParams.TrialPeriodDays = stripe.Int64(int64(req.TrialDays))
	}
	subParams.AddMetadata("plan_id", req.PlanID)
	if req.Customer.UserID != "" {
		subParams.AddMetadata("user_id", req.Customer.UserID)
	}
	for k, v := range req.Metadata {
		subParams.AddMetadata(k, v)
	}
	sub, err := api.Subscriptions.New(subParams)
	if err != nil {
		return fail(gatewayError("create subscription failed", err, map[string]any{
			"customer_id": customerID,
			"price_id":    price.ID,
		}))
	}

	now := a.clock.Now()
	periodEnd := timestamp(sub.CurrentPeriodEnd, req.BillingCycle.NextBillingDate(now))
	return &domain.SubscriptionResponse{
		Success:               true,
		GatewaySubscriptionID: sub.ID,
		GatewayCustomerID:     customerID,
		GatewayPlanID:         price.ID,
		Status:                mapSubscriptionStatus(string(sub.Status)),
		NextBillingDate:       periodEnd,
		CurrentPeriodStart:    timestamp(sub.CurrentPeriodStart, now),
		CurrentPeriodEnd:      periodEnd,
		TrialStart:            optionalTime(sub.TrialStart),
		TrialEnd:              optionalTime(sub.TrialEnd),
		Metadata: map[string]string{
			"customer_id":     customerID,
			"subscription_id": sub.ID,
			"product_id":      product.ID,
			"price_id":        price.ID,
		},
	}, nil
}

func (a *Adapter) CancelSubscription(ctx context.Context, req domain.CancelSubscriptionRequest) (*domain.CancelSubscriptionResponse, error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}
	if req.GatewaySubscriptionID == "" {
		return nil, domain.NewValidationError(domain.GatewayStripe, "gateway subscription id is required")
	}

	var sub *stripe.Subscription
	if req.CancelAtPeriodEnd {
		params := &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		}
		params.Context = ctx
		if req.Reason != "" {
			params.AddMetadata("cancel_reason", req.Reason)
		}
		sub, err = api.Subscriptions.Update(req.GatewaySubscriptionID, params)
	} else {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		sub, err = api.Subscriptions.Cancel(req.GatewaySubscriptionID, params)
	}
	if err != nil {
		return nil, gatewayError("cancel subscription failed", err, map[string]any{
			"subscription_id":      req.GatewaySubscriptionID,
			"cancel_at_period_end": req.CancelAtPeriodEnd,
		})
	}

	resp := &domain.CancelSubscriptionResponse{
		Success:           true,
		Status:            mapSubscriptionStatus(string(sub.Status)),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        optionalTime(sub.CanceledAt),
	}
	if !req.CancelAtPeriodEnd && resp.CanceledAt == nil {
		now := a.clock.Now()
		resp.CanceledAt = &now
	}
	return resp, nil
}

// UpdateSubscription swaps a fresh price into the subscription item when the
// amount or billing cycle changes, since Stripe prices are immutable.
func (a *Adapter) UpdateSubscription(ctx context.Context, req domain.UpdateSubscriptionRequest) (*domain.UpdateSubscriptionResponse, error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}
	if req.GatewaySubscriptionID == "" {
		return nil, domain.NewValidationError(domain.GatewayStripe, "gateway subscription id is required")
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, domain.NewValidationError(domain.GatewayStripe, "amount must be positive")
	}

	tx := saga.New(a.log, "stripe.update_subscription")
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	changed := []string{}
	planID := req.GatewayPlanID

	if req.Amount != nil || req.BillingCycle != "" {
		getParams := &stripe.SubscriptionParams{}
		getParams.Context = ctx
		current, err := api.Subscriptions.Get(req.GatewaySubscriptionID, getParams)
		if err != nil {
			return nil, gatewayError("load subscription failed", err, map[string]any{"subscription_id": req.GatewaySubscriptionID})
		}
		if current.Items == nil || len(current.Items.Data) == 0 || current.Items.Data[0].Price == nil {
			return nil, domain.NewGatewayError(domain.GatewayStripe, "subscription has no price item", nil, map[string]any{"subscription_id": req.GatewaySubscriptionID})
		}
		item := current.Items.Data[0]

		unitAmount := item.Price.UnitAmount
		if req.Amount != nil {
			unitAmount = domain.ToMinorUnits(*req.Amount)
			changed = append(changed, "amount")
		}
		cycle := req.BillingCycle
		if cycle == "" && item.Price.Recurring != nil {
			cycle = billingCycleFromInterval(string(item.Price.Recurring.Interval), item.Price.Recurring.IntervalCount)
		}
		if req.BillingCycle != "" {
			changed = append(changed, "billing_cycle")
		}
		currency := req.Currency
		if currency == "" {
			currency = string(item.Price.Currency)
		}
		productID := ""
		if item.Price.Product != nil {
			productID = item.Price.Product.ID
		}

		price, err := a.createPrice(ctx, api, productID, domain.FromMinorUnits(unitAmount).String(), unitAmount, currency, cycle)
		if err != nil {
			return nil, err
		}
		tx.Record("price", func(ctx context.Context) error {
			return archivePrice(ctx, api, price.ID)
		})
		params.Items = []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(item.ID), Price: stripe.String(price.ID)},
		}
		planID = price.ID
	}

	if len(req.Metadata) > 0 {
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
		}
		changed = append(changed, "metadata")
	}

	if len(changed) == 0 {
		return &domain.UpdateSubscriptionResponse{Success: true, GatewayPlanID: planID, ChangedFields: changed}, nil
	}

	sub, err := api.Subscriptions.Update(req.GatewaySubscriptionID, params)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			a.log.Warn("stripe price left behind", zap.Error(rbErr))
		}
		return nil, gatewayError("update subscription failed", err, map[string]any{"subscription_id": req.GatewaySubscriptionID})
	}

	return &domain.UpdateSubscriptionResponse{
		Success:       true,
		Status:        mapSubscriptionStatus(string(sub.Status)),
		GatewayPlanID: planID,
		ChangedFields: changed,
	}, nil
}

func (a *Adapter) createPrice(
	ctx context.Context,
	api *client.API,
	productID string,
	display string,
	unitAmount int64,
	currency string,
	cycle domain.BillingCycle,
) (*stripe.Price, error) {
	interval, count := recurringInterval(cycle)
	params := &stripe.PriceParams{
		Product:    stripe.String(productID),
		Currency:   stripe.String(strings.ToLower(strings.TrimSpace(currency))),
		UnitAmount: stripe.Int64(unitAmount),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(interval),
			IntervalCount: stripe.Int64(count),
		},
	}
	params.Context = ctx
	price, err := api.Prices.New(params)
	if err != nil {
		return nil, gatewayError("create price failed", err, map[string]any{
			"product_id": productID,
			"amount":     display,
			"currency":   currency,
		})
	}
	return price, nil
}

func archiveProduct(ctx context.Context, api *client.API, id string) error {
	params := &stripe.ProductParams{Active: stripe.Bool(false)}
	params.Context = ctx
	_, err := api.Products.Update(id, params)
	return err
}

func archivePrice(ctx context.Context, api *client.API, id string) error {
	params := &stripe.PriceParams{Active: stripe.Bool(false)}
	params.Context = ctx
	_, err := api.Prices.Update(id, params)
	return err
}

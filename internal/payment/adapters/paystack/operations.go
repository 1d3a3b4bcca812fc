package paystack

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/saga"
	"go.uber.org/zap"
)

type customerData struct {
	ID           int64  `json:"id"`
	CustomerCode string `json:"customer_code"`
	Email        string `json:"email"`
}

type planData struct {
	ID       int64  `json:"id"`
	PlanCode string `json:"plan_code"`
}

type subscriptionData struct {
	ID               int64  `json:"id"`
	SubscriptionCode string `json:"subscription_code"`
	EmailToken       string `json:"email_token"`
	Status           string `json:"status"`
	NextPaymentDate  string `json:"next_payment_date"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

func (a *Adapter) CreateCustomer(ctx context.Context, info domain.CustomerInfo) (string, error) {
	api, err := a.client()
	if err != nil {
		return "", err
	}
	return a.createCustomer(ctx, api, info)
}

func (a *Adapter) createCustomer(ctx context.Context, api *apiClient, info domain.CustomerInfo) (string, error) {
	if strings.TrimSpace(info.Email) == "" {
		return "", domain.NewValidationError(domain.GatewayPaystack, "customer email is required")
	}

	first, last := splitName(info.Name)
	metadata := map[string]string{}
	for k, v := range info.Metadata {
		metadata[k] = v
	}
	if info.UserID != "" {
		metadata["user_id"] = info.UserID
	}
	body := map[string]any{
		"email":      info.Email,
		"first_name": first,
		"last_name":  last,
		"metadata":   metadata,
	}
	if info.Phone != "" {
		body["phone"] = info.Phone
	}

	var out customerData
	if err := api.do(ctx, http.MethodPost, "/customer", body, &out); err != nil {
		return "", gatewayError("create customer failed", err, info.Fields())
	}
	return out.CustomerCode, nil
}

// CreateSubscription creates customer, plan and subscription in order.
// Paystack cannot delete customers or plans, so on failure the objects
// already created are reported for manual cleanup.
func (a *Adapter) CreateSubscription(ctx context.Context, req domain.SubscriptionRequest) (*domain.SubscriptionResponse, error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError(domain.GatewayPaystack, "amount must be positive")
	}

	tx := saga.New(a.log, "paystack.create_subscription")
	fail := func(err error) (*domain.SubscriptionResponse, error) {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	customerCode := req.CustomerID
	if customerCode == "" {
		customerCode, err = a.createCustomer(ctx, api, req.Customer)
		if err != nil {
			return nil, err
		}
		tx.Record("customer", a.orphan("customer", customerCode))
	}

	var plan planData
	planBody := map[string]any{
		"name":     req.PlanName,
		"interval": a.planInterval(req.BillingCycle),
		"amount":   domain.ToMinorUnits(req.Amount),
		"currency": strings.ToUpper(req.Currency),
	}
	if req.Description != "" {
		planBody["description"] = req.Description
	}
	if err := api.do(ctx, http.MethodPost, "/plan", planBody, &plan); err != nil {
		return fail(gatewayError("create plan failed", err, map[string]any{"plan_id": req.PlanID}))
	}
	tx.Record("plan", a.orphan("plan", plan.PlanCode))

	now := a.clock.Now()
	subBody := map[string]any{
		"customer": customerCode,
		"plan":     plan.PlanCode,
	}
	var trialStart, trialEnd *time.Time
	if req.TrialDays > 0 {
		start := now
		end := now.AddDate(0, 0, req.TrialDays)
		trialStart, trialEnd = &start, &end
		subBody["start_date"] = end.Format(time.RFC3339)
	}

	var sub subscriptionData
	if err := api.do(ctx, http.MethodPost, "/subscription", subBody, &sub); err != nil {
		return fail(gatewayError("create subscription failed", err, map[string]any{
			"customer_code": customerCode,
			"plan_code":     plan.PlanCode,
		}))
	}

	status := mapSubscriptionStatus(sub.Status)
	next := req.BillingCycle.NextBillingDate(now)
	if trialEnd != nil {
		status = domain.SubscriptionStatusTrialing
		next = *trialEnd
	}
	if parsed, err := time.Parse(time.RFC3339, sub.NextPaymentDate); err == nil {
		next = parsed.UTC()
	}

	return &domain.SubscriptionResponse{
		Success:               true,
		GatewaySubscriptionID: sub.SubscriptionCode,
		GatewayCustomerID:     customerCode,
		GatewayPlanID:         plan.PlanCode,
		Status:                status,
		NextBillingDate:       next,
		CurrentPeriodStart:    now,
		CurrentPeriodEnd:      next,
		TrialStart:            trialStart,
		TrialEnd:              trialEnd,
		Metadata: map[string]string{
			"customer_code":     customerCode,
			"plan_code":         plan.PlanCode,
			"subscription_code": sub.SubscriptionCode,
			"email_token":       sub.EmailToken,
		},
	}, nil
}

func (a *Adapter) orphan(kind, code string) saga.CompensateFunc {
	return func(ctx context.Context) error {
		a.log.Warn("orphaned paystack object requires manual cleanup", zap.String("kind", kind), zap.String("code", code))
		return nil
	}
}

// ProcessPayment initializes a transaction. The payer completes it on the
// returned authorization URL, so the result is always pending.
func (a *Adapter) ProcessPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResponse, error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError(domain.GatewayPaystack, "amount must be positive")
	}
	if strings.TrimSpace(req.Customer.Email) == "" {
		return nil, domain.NewValidationError(domain.GatewayPaystack, "customer email is required")
	}

	if req.CustomerID == "" {
		if req.CustomerID, err = a.createCustomer(ctx, api, req.Customer); err != nil {
			return nil, err
		}
	}

	reference := "pcr_" + strings.ToLower(ulid.Make().String())
	metadata := map[string]string{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if req.Customer.UserID != "" {
		metadata["user_id"] = req.Customer.UserID
	}
	if req.Description != "" {
		metadata["description"] = req.Description
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	body := map[string]any{
		"email":     req.Customer.Email,
		"amount":    strconv.FormatInt(domain.ToMinorUnits(req.Amount), 10),
		"currency":  currency,
		"reference": reference,
		"metadata":  metadata,
	}
	if req.PaymentMethod != "" {
		body["channels"] = []string{channel(req.PaymentMethod)}
	}

	var raw json.RawMessage
	if err := api.do(ctx, http.MethodPost, "/transaction/initialize", body, &raw); err != nil {
		return nil, gatewayError("initialize transaction failed", err, map[string]any{
			"reference": reference,
			"amount":    req.Amount.String(),
			"currency":  currency,
		})
	}
	var out initializeData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, gatewayError("decode transaction failed", err, map[string]any{"reference": reference})
	}
	if out.Reference == "" {
		out.Reference = reference
	}

	return &domain.PaymentResponse{
		Success:              true,
		TransactionID:        out.Reference,
		GatewayTransactionID: out.Reference,
		Status:               domain.PaymentStatusPending,
		Amount:               req.Amount,
		Currency:             currency,
		GatewayResponse:      raw,
		Metadata: map[string]string{
			"authorization_url": out.AuthorizationURL,
			"access_code":       out.AccessCode,
			"reference":         out.Reference,
			"customer_code":     req.CustomerID,
		},
	}, nil
}

// CancelSubscription disables the subscription. Disabling stops renewals,
// so deferred cancellation leaves the current period usable.
func (a *Adapter) CancelSubscription(ctx context.Context, req domain.CancelSubscriptionRequest) (*domain.CancelSubscriptionResponse, error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}
	if req.GatewaySubscriptionID == "" {
		return nil, domain.NewValidationError(domain.GatewayPaystack, "gateway subscription id is required")
	}
	if req.Token == "" {
		return nil, domain.NewValidationError(domain.GatewayPaystack, "subscription email token is required")
	}

	body := map[string]any{
		"code":  req.GatewaySubscriptionID,
		"token": req.Token,
	}
	if err := api.do(ctx, http.MethodPost, "/subscription/disable", body, nil); err != nil {
		return nil, gatewayError("disable subscription failed", err, map[string]any{
			"subscription_code":    req.GatewaySubscriptionID,
			"cancel_at_period_end": req.CancelAtPeriodEnd,
		})
	}

	if req.CancelAtPeriodEnd {
		return &domain.CancelSubscriptionResponse{
			Success:           true,
			Status:            mapSubscriptionStatus("non-renewing"),
			CancelAtPeriodEnd: true,
		}, nil
	}
	now := a.clock.Now()
	return &domain.CancelSubscriptionResponse{
		Success:    true,
		Status:     mapSubscriptionStatus("cancelled"),
		CanceledAt: &now,
	}, nil
}

// UpdateSubscription changes the plan in place and asks Paystack to carry
// the new amount to existing subscriptions. Metadata is not stored at Paystack.
func (a *Adapter) UpdateSubscription(ctx context.Context, req domain.UpdateSubscriptionRequest) (*domain.UpdateSubscriptionResponse, error) {
	api, err := a.client()
	if err != nil {
		return nil, err
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, domain.NewValidationError(domain.GatewayPaystack, "amount must be positive")
	}

	changed := []string{}
	body := map[string]any{"update_existing_subscriptions": true}
	if req.Amount != nil {
		body["amount"] = domain.ToMinorUnits(*req.Amount)
		changed = append(changed, "amount")
	}
	if req.BillingCycle != "" {
		body["interval"] = a.planInterval(req.BillingCycle)
		changed = append(changed, "billing_cycle")
	}
	if len(changed) == 0 {
		return &domain.UpdateSubscriptionResponse{Success: true, GatewayPlanID: req.GatewayPlanID, ChangedFields: changed}, nil
	}
	if req.GatewayPlanID == "" {
		return nil, domain.NewValidationError(domain.GatewayPaystack, "gateway plan code is required")
	}

	if err := api.do(ctx, http.MethodPut, "/plan/"+req.GatewayPlanID, body, nil); err != nil {
		return nil, gatewayError("update plan failed", err, map[string]any{
			"plan_code":         req.GatewayPlanID,
			"subscription_code": req.GatewaySubscriptionID,
		})
	}

	return &domain.UpdateSubscriptionResponse{
		Success:       true,
		Status:        domain.SubscriptionStatusActive,
		GatewayPlanID: req.GatewayPlanID,
		ChangedFields: changed,
	}, nil
}

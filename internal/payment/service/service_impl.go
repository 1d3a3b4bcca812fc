package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/gateway"
	"github.com/smallbiznis/paycore/internal/payment/lock"
	"github.com/smallbiznis/paycore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultTrialDays = 7
	defaultCurrency  = "USD"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Gateways   *gateway.Registry
	Router     *gateway.Router
	Clock      clock.Clock
	Config     config.Config
	Locker     *lock.Locker        `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	gateways   *gateway.Registry
	router     *gateway.Router
	clock      clock.Clock
	locker     *lock.Locker
	obsMetrics *obsmetrics.Metrics

	trialDays int
	currency  string
}

func NewService(p Params) *Service {
	trialDays := p.Config.Payment.TrialDays
	if trialDays <= 0 {
		trialDays = defaultTrialDays
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Config.Payment.DefaultCurrency))
	if currency == "" {
		currency = defaultCurrency
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	router := p.Router
	if router == nil {
		router = gateway.NewRouter(nil)
	}
	gateways := p.Gateways
	if gateways == nil {
		gateways = gateway.NewRegistry()
	}

	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		gateways:   gateways,
		router:     router,
		clock:      clk,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
		trialDays:  trialDays,
		currency:   currency,
	}
}

// SubscriptionUpdate lists the changes to apply to a subscription. Nil or
// empty fields are left untouched.
type SubscriptionUpdate struct {
	Amount       *decimal.Decimal
	BillingCycle domain.BillingCycle
	Metadata     map[string]string
}

func (u SubscriptionUpdate) empty() bool {
	return u.Amount == nil && u.BillingCycle == "" && len(u.Metadata) == 0
}

// PaymentResult is the persisted transaction plus whatever the payer needs
// to finish the payment at the provider (client secret, authorization url).
type PaymentResult struct {
	Transaction *domain.PaymentTransaction `json:"transaction"`
	NextAction  map[string]string          `json:"next_action,omitempty"`
}

func (s *Service) CreateSubscription(ctx context.Context, userID string, planID string, method domain.PaymentMethod) (*domain.Subscription, error) {
	sub, err := s.createSubscription(ctx, strings.TrimSpace(userID), strings.TrimSpace(planID), method)
	if err != nil {
		return nil, wrapError(err)
	}
	return sub, nil
}

func (s *Service) createSubscription(ctx context.Context, userID string, planID string, method domain.PaymentMethod) (*domain.Subscription, error) {
	if userID == "" {
		return nil, domain.NewValidationError("", "user id is required")
	}
	if planID == "" {
		return nil, domain.NewValidationError("", "plan id is required")
	}

	user, err := s.repo.FindUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NewValidationError("", "user not found")
	}
	plan, err := s.repo.FindPlan(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.NewValidationError("", "subscription plan not found")
	}
	if !plan.IsActive {
		return nil, domain.NewValidationError("", "subscription plan is not active")
	}

	release, err := s.acquire(ctx, lock.UserKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.repo.FindActiveSubscription(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errActiveSubscription()
	}

	name := s.router.Best(plan.Currency, method)
	gw, err := s.gateways.Get(name)
	if err != nil {
		return nil, err
	}

	info := customerInfo(user)
	customerID, err := s.ensureCustomer(ctx, gw, info)
	if err != nil {
		return nil, err
	}

	resp, err := gw.CreateSubscription(ctx, domain.SubscriptionRequest{
		Customer:      info,
		CustomerID:    customerID,
		PlanID:        plan.ID,
		PlanName:      plan.Name,
		Description:   plan.Description,
		Amount:        plan.MonthlyPrice,
		Currency:      strings.ToUpper(plan.Currency),
		BillingCycle:  domain.BillingCycleMonthly,
		PaymentMethod: method,
		TrialDays:     s.trialDays,
		Metadata: map[string]string{
			"user_id": userID,
			"plan_id": plan.ID,
		},
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || !resp.Success {
		return nil, domain.NewGatewayError(name, "subscription was not created", nil, map[string]any{"plan_id": plan.ID})
	}

	now := s.clock.Now()
	status := resp.Status
	if status == "" {
		status = domain.SubscriptionStatusActive
	}
	sub := &domain.Subscription{
		ID:                    s.genID.Generate(),
		UserID:                userID,
		PlanID:                plan.ID,
		PlanName:              plan.Name,
		PlanType:              plan.ID,
		Status:                status,
		IsActive:              isLive(status),
		BillingCycle:          domain.BillingCycleMonthly,
		Amount:                plan.MonthlyPrice,
		Currency:              strings.ToUpper(plan.Currency),
		NextBillingDate:       optionalTime(resp.NextBillingDate),
		CurrentPeriodStart:    optionalTime(resp.CurrentPeriodStart),
		CurrentPeriodEnd:      optionalTime(resp.CurrentPeriodEnd),
		Gateway:               name,
		GatewaySubscriptionID: resp.GatewaySubscriptionID,
		GatewayCustomerID:     firstNonEmpty(resp.GatewayCustomerID, customerID),
		GatewayPlanID:         resp.GatewayPlanID,
		TrialStart:            resp.TrialStart,
		TrialEnd:              resp.TrialEnd,
		IsTrialActive:         resp.TrialEnd != nil && resp.TrialEnd.After(now),
		Metadata:              encodeMetadata(resp.Metadata),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.InsertSubscription(ctx, s.db, sub); err != nil {
		s.log.Error("subscription created at gateway but not stored",
			zap.String("user_id", userID),
			zap.String("gateway", string(name)),
			zap.String("gateway_subscription_id", resp.GatewaySubscriptionID),
			zap.Error(err),
		)
		s.cancelOrphan(ctx, gw, resp)
		if db.IsDuplicateKeyErr(err) {
			return nil, errActiveSubscription()
		}
		return nil, err
	}

	s.obsMetrics.RecordSubscription(ctx, string(name), string(sub.Status))
	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("user_id", userID),
		zap.String("gateway", string(name)),
		zap.String("status", string(sub.Status)),
	)
	return sub, nil
}

// cancelOrphan cancels a provider subscription that has no local row, so the
// customer is never billed for it.
func (s *Service) cancelOrphan(ctx context.Context, gw domain.Gateway, resp *domain.SubscriptionResponse) {
	if resp.GatewaySubscriptionID == "" {
		return
	}
	log := s.log.With(
		zap.String("gateway", string(gw.Name())),
		zap.String("gateway_subscription_id", resp.GatewaySubscriptionID),
	)
	_, err := gw.CancelSubscription(context.WithoutCancel(ctx), domain.CancelSubscriptionRequest{
		GatewaySubscriptionID: resp.GatewaySubscriptionID,
		CancelAtPeriodEnd:     false,
		Token:                 resp.Metadata["email_token"],
	})
	if err != nil {
		log.Error("orphaned gateway subscription could not be canceled", zap.Error(err))
		return
	}
	log.Warn("orphaned gateway subscription canceled")
}

func (s *Service) CancelSubscription(ctx context.Context, id snowflake.ID, cancelAtPeriodEnd bool) (*domain.Subscription, error) {
	sub, err := s.cancelSubscription(ctx, id, cancelAtPeriodEnd)
	if err != nil {
		return nil, wrapError(err)
	}
	return sub, nil
}

func (s *Service) cancelSubscription(ctx context.Context, id snowflake.ID, cancelAtPeriodEnd bool) (*domain.Subscription, error) {
	release, err := s.acquire(ctx, lock.SubscriptionKey(id.String()))
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := s.loadSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionStatusCanceled {
		return nil, domain.NewValidationError(sub.Gateway, "subscription is already canceled")
	}

	gw, err := s.gateways.Get(sub.Gateway)
	if err != nil {
		return nil, err
	}
	resp, err := gw.CancelSubscription(ctx, domain.CancelSubscriptionRequest{
		GatewaySubscriptionID: sub.GatewaySubscriptionID,
		CancelAtPeriodEnd:     cancelAtPeriodEnd,
		Token:                 decodeMetadata(sub.Metadata)["email_token"],
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if cancelAtPeriodEnd {
		sub.Status = domain.SubscriptionStatusActive
		sub.IsActive = true
		sub.WillCancelAtPeriodEnd = true
	} else {
		canceledAt := now
		if resp != nil && resp.CanceledAt != nil {
			canceledAt = resp.CanceledAt.UTC()
		}
		sub.Status = domain.SubscriptionStatusCanceled
		sub.IsActive = false
		sub.IsTrialActive = false
		sub.WillCancelAtPeriodEnd = false
		sub.CanceledAt = &canceledAt
	}
	sub.UpdatedAt = now

	if err := s.repo.UpdateSubscription(ctx, s.db, sub); err != nil {
		return nil, err
	}

	s.obsMetrics.RecordSubscription(ctx, string(sub.Gateway), string(sub.Status))
	s.log.Info("subscription canceled",
		zap.String("subscription_id", sub.ID.String()),
		zap.Bool("cancel_at_period_end", cancelAtPeriodEnd),
	)
	return sub, nil
}

func (s *Service) UpdateSubscription(ctx context.Context, id snowflake.ID, update SubscriptionUpdate) (*domain.Subscription, error) {
	sub, err := s.updateSubscription(ctx, id, update)
	if err != nil {
		return nil, wrapError(err)
	}
	return sub, nil
}

func (s *Service) updateSubscription(ctx context.Context, id snowflake.ID, update SubscriptionUpdate) (*domain.Subscription, error) {
	if update.empty() {
		return nil, domain.NewValidationError("", "no subscription changes given")
	}
	if update.Amount != nil && !update.Amount.IsPositive() {
		return nil, domain.NewValidationError("", "amount must be positive")
	}
	switch update.BillingCycle {
	case "", domain.BillingCycleMonthly, domain.BillingCycleQuarterly, domain.BillingCycleYearly, domain.BillingCycleCustom:
	default:
		return nil, domain.NewValidationError("", "unknown billing cycle")
	}

	release, err := s.acquire(ctx, lock.SubscriptionKey(id.String()))
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := s.loadSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionStatusCanceled {
		return nil, domain.NewValidationError(sub.Gateway, "subscription is canceled")
	}

	gw, err := s.gateways.Get(sub.Gateway)
	if err != nil {
		return nil, err
	}
	resp, err := gw.UpdateSubscription(ctx, domain.UpdateSubscriptionRequest{
		GatewaySubscriptionID: sub.GatewaySubscriptionID,
		GatewayPlanID:         sub.GatewayPlanID,
		Currency:              sub.Currency,
		PlanName:              sub.PlanName,
		BillingCycle:          update.BillingCycle,
		Amount:                update.Amount,
		Metadata:              update.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if update.Amount != nil {
		sub.Amount = *update.Amount
	}
	if update.BillingCycle != "" {
		sub.BillingCycle = update.BillingCycle
	}
	if len(update.Metadata) > 0 {
		merged := decodeMetadata(sub.Metadata)
		for k, v := range update.Metadata {
			merged[k] = v
		}
		sub.Metadata = encodeMetadata(merged)
	}
	if resp != nil && resp.GatewayPlanID != "" {
		sub.GatewayPlanID = resp.GatewayPlanID
	}
	sub.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateSubscription(ctx, s.db, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ProcessPayment charges userID once in the configured settlement currency.
func (s *Service) ProcessPayment(ctx context.Context, userID string, amount decimal.Decimal, description string, method domain.PaymentMethod) (*PaymentResult, error) {
	result, err := s.processPayment(ctx, strings.TrimSpace(userID), amount, strings.TrimSpace(description), method)
	if err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

func (s *Service) processPayment(ctx context.Context, userID string, amount decimal.Decimal, description string, method domain.PaymentMethod) (*PaymentResult, error) {
	if userID == "" {
		return nil, domain.NewValidationError("", "user id is required")
	}
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("", "amount must be positive")
	}

	user, err := s.repo.FindUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NewValidationError("", "user not found")
	}

	name := s.router.Best(s.currency, method)
	gw, err := s.gateways.Get(name)
	if err != nil {
		return nil, err
	}

	info := customerInfo(user)
	customerID, err := s.ensureCustomer(ctx, gw, info)
	if err != nil {
		return nil, err
	}

	resp, err := gw.ProcessPayment(ctx, domain.PaymentRequest{
		Customer:      info,
		CustomerID:    customerID,
		Amount:        amount,
		Currency:      s.currency,
		Description:   description,
		PaymentMethod: method,
		Metadata:      map[string]string{"user_id": userID},
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || !resp.Success {
		return nil, domain.NewGatewayError(name, "payment was not accepted", nil, map[string]any{"user_id": userID})
	}

	now := s.clock.Now()
	stored := map[string]string{}
	for k, v := range resp.Metadata {
		if k == "client_secret" {
			continue
		}
		stored[k] = v
	}
	tx := &domain.PaymentTransaction{
		ID:                   s.genID.Generate(),
		UserID:               userID,
		TransactionID:        firstNonEmpty(resp.TransactionID, resp.GatewayTransactionID),
		Amount:               amount,
		Currency:             s.currency,
		Status:               resp.Status,
		Gateway:              name,
		GatewayTransactionID: resp.GatewayTransactionID,
		GatewayResponse:      jsonOrNil(resp.GatewayResponse),
		PaymentMethod:        method,
		Description:          description,
		Metadata:             encodeMetadata(stored),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if tx.Status == "" {
		tx.Status = domain.PaymentStatusPending
	}
	if err := s.repo.InsertTransaction(ctx, s.db, tx); err != nil {
		s.log.Error("payment accepted by gateway but not stored",
			zap.String("user_id", userID),
			zap.String("gateway", string(name)),
			zap.String("gateway_transaction_id", resp.GatewayTransactionID),
			zap.Error(err),
		)
		return nil, err
	}

	s.obsMetrics.RecordPayment(ctx, string(name), string(tx.Status))
	return &PaymentResult{Transaction: tx, NextAction: resp.Metadata}, nil
}

// ensureCustomer returns the cached gateway customer for the user, creating
// and caching one on first use.
func (s *Service) ensureCustomer(ctx context.Context, gw domain.Gateway, info domain.CustomerInfo) (string, error) {
	cached, err := s.repo.FindGatewayCustomer(ctx, s.db, info.UserID, gw.Name())
	if err != nil {
		return "", err
	}
	if cached != nil {
		return cached.GatewayCustomerID, nil
	}

	customerID, err := gw.CreateCustomer(ctx, info)
	if err != nil {
		return "", err
	}
	inserted, err := s.repo.InsertGatewayCustomer(ctx, s.db, &domain.GatewayCustomer{
		ID:                s.genID.Generate(),
		UserID:            info.UserID,
		Gateway:           gw.Name(),
		GatewayCustomerID: customerID,
		CreatedAt:         s.clock.Now(),
	})
	if err != nil {
		return "", err
	}
	if inserted {
		return customerID, nil
	}

	// A concurrent request stored its customer first; use that one.
	s.log.Warn("duplicate gateway customer created",
		zap.String("user_id", info.UserID),
		zap.String("gateway", string(gw.Name())),
		zap.String("gateway_customer_id", customerID),
	)
	cached, err = s.repo.FindGatewayCustomer(ctx, s.db, info.UserID, gw.Name())
	if err != nil {
		return "", err
	}
	if cached == nil {
		return customerID, nil
	}
	return cached.GatewayCustomerID, nil
}

func (s *Service) loadSubscription(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	if id == 0 {
		return nil, domain.NewValidationError("", "subscription id is required")
	}
	sub, err := s.repo.FindSubscription(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.NewValidationError("", "subscription not found")
	}
	return sub, nil
}

func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	release, err := s.locker.Acquire(ctx, key)
	switch {
	case err == nil:
		return release, nil
	case errors.Is(err, lock.ErrLockHeld):
		return nil, domain.NewValidationError("", "another request for this resource is in progress")
	default:
		s.log.Warn("lock unavailable, continuing without it", zap.String("key", key), zap.Error(err))
		return func() {}, nil
	}
}

func errActiveSubscription() error {
	return domain.NewValidationError("", "user already has an active subscription")
}

// wrapError keeps the payment taxonomy intact and tags anything else as an
// unknown gateway failure.
func wrapError(err error) error {
	if err == nil || errors.Is(err, domain.ErrEventAlreadyProcessed) {
		return err
	}
	return domain.AsPaymentError(err)
}

func customerInfo(user *domain.User) domain.CustomerInfo {
	info := domain.CustomerInfo{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Phone:  user.Phone,
	}
	if len(user.Address) > 0 {
		var addr domain.Address
		if err := json.Unmarshal(user.Address, &addr); err == nil {
			info.Address = &addr
		}
	}
	return info
}

func isLive(status domain.SubscriptionStatus) bool {
	return status == domain.SubscriptionStatusActive || status == domain.SubscriptionStatusTrialing
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func encodeMetadata(values map[string]string) datatypes.JSON {
	if len(values) == 0 {
		return datatypes.JSON("{}")
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

func decodeMetadata(raw datatypes.JSON) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

func jsonOrNil(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return datatypes.JSON(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/paycore/internal/payment/domain"
	pkgdb "github.com/smallbiznis/paycore/pkg/db"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type eventFamily int

const (
	familyIgnored eventFamily = iota
	familyPaymentSucceeded
	familyPaymentFailed
	familyCanceled
	familyRefunded
	familyDisputed
	familyInvoiceUpdated
)

var eventFamilies = map[string]eventFamily{
	"invoice.payment_succeeded":       familyPaymentSucceeded,
	"charge.succeeded":                familyPaymentSucceeded,
	"subscription.payment_successful": familyPaymentSucceeded,
	"charge.success":                  familyPaymentSucceeded,
	"invoice.payment_failed":          familyPaymentFailed,
	"charge.failed":                   familyPaymentFailed,
	"payment_intent.payment_failed":   familyPaymentFailed,
	"customer.subscription.deleted":   familyCanceled,
	"subscription.cancelled":          familyCanceled,
	"subscription.disable":            familyCanceled,
	"charge.refunded":                 familyRefunded,
	"charge.dispute.created":          familyDisputed,
	"invoice.update":                  familyInvoiceUpdated,
}

// HandleWebhook verifies a raw provider delivery and applies it.
func (s *Service) HandleWebhook(ctx context.Context, name domain.GatewayName, payload []byte, signature string) error {
	gw, err := s.gateways.Get(domain.ParseGatewayName(string(name)))
	if err != nil {
		return wrapError(err)
	}
	event, err := gw.VerifyWebhook(ctx, payload, signature)
	if err != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, string(gw.Name()), "unverified", "rejected")
		return wrapError(err)
	}
	return s.ProcessWebhookEvent(ctx, event)
}

// ProcessWebhookEvent applies a verified event at most once per
// (gateway, event id). A redelivery of a processed event returns
// ErrEventAlreadyProcessed and changes nothing.
func (s *Service) ProcessWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now()
	payload := datatypes.JSON("{}")
	if len(event.Payload) > 0 && json.Valid(event.Payload) {
		payload = datatypes.JSON(event.Payload)
	}
	received := domain.WebhookEventRecord{
		ID:         s.genID.Generate(),
		Gateway:    event.Gateway,
		EventID:    event.ID,
		EventType:  event.Type,
		Payload:    payload,
		ReceivedAt: now,
	}

	// The dedup row commits together with the side effects. A concurrent
	// delivery of the same event blocks on the unique key until this
	// transaction ends, then sees it processed.
	var inserted bool
	family := eventFamilies[event.Type]
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = s.repo.InsertWebhookEvent(ctx, tx, &received)
		if err != nil {
			return err
		}
		stored := &received
		if !inserted {
			stored, err = s.repo.FindWebhookEvent(ctx, tx, event.Gateway, event.ID)
			if err != nil {
				return err
			}
			if stored == nil {
				return domain.NewValidationError(event.Gateway, "webhook event record missing")
			}
			if stored.ProcessedAt != nil {
				return domain.ErrEventAlreadyProcessed
			}
		}
		if err := s.applyEvent(ctx, tx, family, event, now); err != nil {
			return err
		}
		return s.repo.MarkWebhookEventProcessed(ctx, tx, stored.ID, now)
	})
	if errors.Is(err, domain.ErrEventAlreadyProcessed) {
		s.log.Debug("webhook event already processed",
			zap.String("gateway", string(event.Gateway)),
			zap.String("event_id", event.ID),
		)
		return err
	}
	if err != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, string(event.Gateway), event.Type, "error")
		s.log.Error("failed to process webhook event",
			zap.String("gateway", string(event.Gateway)),
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return wrapError(err)
	}

	if inserted {
		outcome := "processed"
		if family == familyIgnored {
			outcome = "ignored"
		}
		s.obsMetrics.RecordWebhookEvent(ctx, string(event.Gateway), event.Type, outcome)
	}
	return nil
}

func validateEvent(event *domain.WebhookEvent) error {
	if event == nil {
		return domain.NewValidationError("", "webhook event is required")
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" || event.Type == "" {
		return domain.NewValidationError(event.Gateway, "webhook event needs an id and a type")
	}
	if event.Gateway == "" {
		return domain.NewValidationError("", "webhook event has no gateway")
	}
	return nil
}

func (s *Service) applyEvent(ctx context.Context, db *gorm.DB, family eventFamily, event *domain.WebhookEvent, now time.Time) error {
	switch family {
	case familyPaymentSucceeded:
		return s.onPaymentSucceeded(ctx, db, event, now)
	case familyPaymentFailed:
		return s.onPaymentFailed(ctx, db, event, now)
	case familyCanceled:
		return s.onCanceled(ctx, db, event, now)
	case familyRefunded:
		return s.setTransactionStatus(ctx, db, event, domain.PaymentStatusRefunded, now)
	case familyDisputed:
		return s.setTransactionStatus(ctx, db, event, domain.PaymentStatusDisputed, now)
	case familyInvoiceUpdated:
		// Paystack renewals: only the paid invoice names the subscription.
		if event.Metadata["paid"] == "true" {
			return s.onPaymentSucceeded(ctx, db, event, now)
		}
		s.log.Info("ignoring unpaid invoice update",
			zap.String("gateway", string(event.Gateway)),
			zap.String("event_id", event.ID),
		)
		return nil
	default:
		s.log.Info("ignoring webhook event",
			zap.String("gateway", string(event.Gateway)),
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		return nil
	}
}

func (s *Service) onPaymentSucceeded(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent, now time.Time) error {
	sub, err := s.subscriptionFor(ctx, db, event)
	if err != nil {
		return err
	}
	if sub != nil && sub.Status != domain.SubscriptionStatusCanceled {
		if err := s.reactivate(ctx, db, sub, now); err != nil {
			return err
		}
	}

	existing, err := s.transactionFor(ctx, db, event)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Status == domain.PaymentStatusCompleted {
			return nil
		}
		return s.repo.UpdateTransactionStatus(ctx, db, existing.ID, domain.PaymentStatusCompleted, now)
	}

	// Zero amount invoices are trial periods; nothing was charged.
	if event.Data.AmountMinor <= 0 {
		return nil
	}

	tx := &domain.PaymentTransaction{
		ID:                   s.genID.Generate(),
		TransactionID:        firstNonEmpty(event.Data.GatewayTransactionID, event.ID),
		Amount:               domain.FromMinorUnits(event.Data.AmountMinor),
		Currency:             strings.ToUpper(event.Data.Currency),
		Status:               domain.PaymentStatusCompleted,
		Gateway:              event.Gateway,
		GatewayTransactionID: event.Data.GatewayTransactionID,
		GatewayResponse:      jsonOrNil(event.Payload),
		Description:          event.Type,
		Metadata: encodeMetadata(map[string]string{
			"event_id":                event.ID,
			"gateway_subscription_id": event.Data.GatewaySubscriptionID,
		}),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sub != nil {
		tx.UserID = sub.UserID
		if tx.Currency == "" {
			tx.Currency = sub.Currency
		}
	}
	if err := s.repo.InsertTransaction(ctx, db, tx); err != nil {
		return err
	}
	s.obsMetrics.RecordPayment(ctx, string(event.Gateway), string(tx.Status))
	return nil
}

// reactivate marks sub active under a savepoint. When the user already holds
// another live subscription the old one stays as it was; the payment is still
// recorded by the caller.
func (s *Service) reactivate(ctx context.Context, db *gorm.DB, sub *domain.Subscription, now time.Time) error {
	next := *sub
	next.Status = domain.SubscriptionStatusActive
	next.IsActive = true
	next.IsTrialActive = next.TrialEnd != nil && next.TrialEnd.After(now)
	next.UpdatedAt = now

	err := db.Transaction(func(sp *gorm.DB) error {
		return s.repo.UpdateSubscription(ctx, sp, &next)
	})
	if err == nil {
		*sub = next
		return nil
	}
	if !pkgdb.IsDuplicateKeyErr(err) {
		return err
	}
	s.log.Warn("payment for superseded subscription, leaving it unchanged",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("user_id", sub.UserID),
		zap.String("status", string(sub.Status)),
	)
	return nil
}

func (s *Service) onPaymentFailed(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent, now time.Time) error {
	sub, err := s.subscriptionFor(ctx, db, event)
	if err != nil {
		return err
	}
	if sub != nil && sub.Status != domain.SubscriptionStatusCanceled {
		sub.Status = domain.SubscriptionStatusPastDue
		sub.UpdatedAt = now
		if err := s.repo.UpdateSubscription(ctx, db, sub); err != nil {
			return err
		}
	}
	return s.setTransactionStatus(ctx, db, event, domain.PaymentStatusFailed, now)
}

func (s *Service) onCanceled(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent, now time.Time) error {
	sub, err := s.subscriptionFor(ctx, db, event)
	if err != nil || sub == nil {
		return err
	}
	if sub.Status == domain.SubscriptionStatusCanceled {
		return nil
	}

	canceledAt := now
	if !event.OccurredAt.IsZero() {
		canceledAt = event.OccurredAt.UTC()
	}
	sub.Status = domain.SubscriptionStatusCanceled
	sub.IsActive = false
	sub.IsTrialActive = false
	sub.WillCancelAtPeriodEnd = false
	sub.CanceledAt = &canceledAt
	sub.UpdatedAt = now
	if err := s.repo.UpdateSubscription(ctx, db, sub); err != nil {
		return err
	}
	s.obsMetrics.RecordSubscription(ctx, string(sub.Gateway), string(sub.Status))
	return nil
}

func (s *Service) setTransactionStatus(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent, status domain.PaymentStatus, now time.Time) error {
	tx, err := s.transactionFor(ctx, db, event)
	if err != nil || tx == nil {
		return err
	}
	if tx.Status == status {
		return nil
	}
	return s.repo.UpdateTransactionStatus(ctx, db, tx.ID, status, now)
}

func (s *Service) subscriptionFor(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (*domain.Subscription, error) {
	if event.Data.GatewaySubscriptionID == "" {
		return nil, nil
	}
	sub, err := s.repo.FindSubscriptionByGatewayID(ctx, db, event.Gateway, event.Data.GatewaySubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		s.log.Warn("webhook references unknown subscription",
			zap.String("gateway", string(event.Gateway)),
			zap.String("event_id", event.ID),
			zap.String("gateway_subscription_id", event.Data.GatewaySubscriptionID),
		)
	}
	return sub, nil
}

func (s *Service) transactionFor(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (*domain.PaymentTransaction, error) {
	if event.Data.GatewayTransactionID == "" {
		return nil, nil
	}
	return s.repo.FindTransactionByGatewayID(ctx, db, event.Gateway, event.Data.GatewayTransactionID)
}

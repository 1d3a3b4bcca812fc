package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/observability/tracing"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// instrumented records a span and a call metric around every provider call.
type instrumented struct {
	domain.Gateway
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Instrument wraps gw with tracing and metrics. Capability queries pass through.
func Instrument(gw domain.Gateway, m *metrics.Metrics) domain.Gateway {
	if gw == nil {
		return nil
	}
	return &instrumented{Gateway: gw, metrics: m, tracer: otel.Tracer("paycore/gateway")}
}

func (g *instrumented) start(ctx context.Context, operation string) (context.Context, func(error)) {
	gateway := string(g.Name())
	ctx, span := g.tracer.Start(ctx, "gateway."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.SafeAttributes(
			attribute.String("payment.gateway", gateway),
			attribute.String("payment.operation", operation),
		)...),
	)
	started := time.Now()

	return ctx, func(err error) {
		outcome := outcomeOf(err)
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.String("payment.outcome", outcome))
		span.End()
		g.metrics.RecordGatewayCall(ctx, gateway, operation, outcome, time.Since(started))
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var perr *domain.PaymentError
	if errors.As(err, &perr) {
		return strings.ToLower(string(perr.Code))
	}
	return "error"
}

func (g *instrumented) CreateCustomer(ctx context.Context, info domain.CustomerInfo) (id string, err error) {
	ctx, done := g.start(ctx, "create_customer")
	defer func() { done(err) }()
	return g.Gateway.CreateCustomer(ctx, info)
}

func (g *instrumented) CreateSubscription(ctx context.Context, req domain.SubscriptionRequest) (resp *domain.SubscriptionResponse, err error) {
	ctx, done := g.start(ctx, "create_subscription")
	defer func() { done(err) }()
	return g.Gateway.CreateSubscription(ctx, req)
}

func (g *instrumented) ProcessPayment(ctx context.Context, req domain.PaymentRequest) (resp *domain.PaymentResponse, err error) {
	ctx, done := g.start(ctx, "process_payment")
	defer func() { done(err) }()
	return g.Gateway.ProcessPayment(ctx, req)
}

func (g *instrumented) CancelSubscription(ctx context.Context, req domain.CancelSubscriptionRequest) (resp *domain.CancelSubscriptionResponse, err error) {
	ctx, done := g.start(ctx, "cancel_subscription")
	defer func() { done(err) }()
	return g.Gateway.CancelSubscription(ctx, req)
}

func (g *instrumented) UpdateSubscription(ctx context.Context, req domain.UpdateSubscriptionRequest) (resp *domain.UpdateSubscriptionResponse, err error) {
	ctx, done := g.start(ctx, "update_subscription")
	defer func() { done(err) }()
	return g.Gateway.UpdateSubscription(ctx, req)
}

func (g *instrumented) VerifyWebhook(ctx context.Context, payload []byte, signature string) (event *domain.WebhookEvent, err error) {
	ctx, done := g.start(ctx, "verify_webhook")
	defer func() { done(err) }()
	return g.Gateway.VerifyWebhook(ctx, payload, signature)
}

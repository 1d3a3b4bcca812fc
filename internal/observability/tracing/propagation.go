package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// SetPropagator configures global W3C tracecontext + baggage propagation.
func SetPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// ExtractInbound continues the caller's trace, except on webhook routes.
// Providers are not part of our traces and a forged traceparent there would
// steer sampling of payment state changes.
func ExtractInbound(ctx context.Context, carrier propagation.TextMapCarrier, route string) context.Context {
	if strings.HasPrefix(route, "/v1/webhooks/") {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectOutbound writes only the traceparent on calls to payment providers.
// Baggage stays in process.
func InjectOutbound(ctx context.Context, carrier propagation.TextMapCarrier) {
	propagation.TraceContext{}.Inject(ctx, carrier)
}

package tracing

import (
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	attrRoute   = "http.route"
	attrGateway = "payment.gateway"
)

// Routes whose spans are never exported.
var unsampledRoutes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// Route prefixes that move money or subscription state.
var paymentRoutePrefixes = []string{
	"/v1/payments",
	"/v1/subscriptions",
	"/v1/webhooks/",
}

type paymentSampler struct {
	ratio    sdktrace.Sampler
	payments bool
}

// NewSampler returns the root sampler. Health and metrics scrapes are dropped.
// With payments set, spans started with a payment.gateway attribute or on a
// payment route are always recorded; everything else follows ratio.
func NewSampler(ratio float64, payments bool) sdktrace.Sampler {
	return paymentSampler{ratio: sdktrace.TraceIDRatioBased(clampRatio(ratio)), payments: payments}
}

func (s paymentSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	route := ""
	gateway := false
	for _, attr := range p.Attributes {
		switch string(attr.Key) {
		case attrRoute:
			route = attr.Value.AsString()
		case attrGateway:
			gateway = attr.Value.AsString() != ""
		}
	}

	if _, ok := unsampledRoutes[route]; ok {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.Drop,
			Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
		}
	}
	if s.payments && (gateway || isPaymentRoute(route)) {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.RecordAndSample,
			Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
		}
	}
	return s.ratio.ShouldSample(p)
}

func (s paymentSampler) Description() string {
	if s.payments {
		return "PaymentSampler{" + s.ratio.Description() + ",payments}"
	}
	return "PaymentSampler{" + s.ratio.Description() + "}"
}

func isPaymentRoute(route string) bool {
	for _, prefix := range paymentRoutePrefixes {
		if strings.HasPrefix(route, prefix) {
			return true
		}
	}
	return false
}

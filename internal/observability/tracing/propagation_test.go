package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const remoteParent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestExtractInboundIgnoresWebhookParents(t *testing.T) {
	SetPropagator()
	header := http.Header{}
	header.Set("traceparent", remoteParent)

	ctx := ExtractInbound(context.Background(), propagation.HeaderCarrier(header), "/v1/webhooks/:gateway")
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())

	ctx = ExtractInbound(context.Background(), propagation.HeaderCarrier(header), "/v1/payments")
	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
}

func TestInjectOutboundKeepsBaggageLocal(t *testing.T) {
	SetPropagator()
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	member, err := baggage.NewMember("user_id", "user-1")
	require.NoError(t, err)
	bag, err := baggage.New(member)
	require.NoError(t, err)
	ctx = baggage.ContextWithBaggage(ctx, bag)

	header := http.Header{}
	InjectOutbound(ctx, propagation.HeaderCarrier(header))
	assert.Equal(t, remoteParent, header.Get("traceparent"))
	assert.Empty(t, header.Get("baggage"))
}

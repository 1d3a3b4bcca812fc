package tracing

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSecrets(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("gateway", "stripe"),
		attribute.String("webhook_secret", "whsec"),
		attribute.String("customer_email", "a@b.c"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("gateway"), attrs[0].Key)
}

func TestSafeAttributesDropsProviderPayloadFields(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("payment.gateway", "paystack"),
		attribute.String("paystack.email_token", "tok_ng"),
		attribute.String("paystack.access_code", "ac_1"),
		attribute.String("card_number", "4242"),
		attribute.String("stripe-signature", "t=1,v1=abc"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("payment.gateway"), attrs[0].Key)
}

type kindError struct{ kind string }

func (e *kindError) Error() string     { return "declined for card 4242: " + e.kind }
func (e *kindError) ErrorKind() string { return e.kind }

func TestSafeErrorHidesMessage(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	err := SafeError(&http.ProtocolError{ErrorString: "sk_live_secret"})
	assert.NotContains(t, err.Error(), "sk_live_secret")
}

func TestSafeErrorKeepsKind(t *testing.T) {
	err := SafeError(fmt.Errorf("charge: %w", &kindError{kind: "GATEWAY_ERROR"}))
	assert.Equal(t, "*fmt.wrapError(GATEWAY_ERROR)", err.Error())
	assert.NotContains(t, err.Error(), "4242")
}

func TestWrapHTTPClientPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := WrapHTTPClient(srv.Client())
	resp, err := client.Get(srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

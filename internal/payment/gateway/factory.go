package gateway

import (
	"net/http"
	"time"

	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/payment/adapters/paystack"
	"github.com/smallbiznis/paycore/internal/payment/adapters/stripe"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"go.uber.org/zap"
)

type options struct {
	log        *zap.Logger
	httpClient *http.Client
	timeout    time.Duration
	clock      clock.Clock
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithHTTPClient replaces the outbound client. It takes precedence over WithTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Implemented lists the gateways New can build, in routing preference order.
func Implemented() []domain.GatewayName {
	return []domain.GatewayName{domain.GatewayStripe, domain.GatewayPaystack}
}

// New returns a fresh, uninitialized adapter for name. Gateways that are
// known but not built yet fail with a configuration error.
func New(name domain.GatewayName, opts ...Option) (domain.Gateway, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	httpClient := o.httpClient
	if httpClient == nil && o.timeout > 0 {
		httpClient = &http.Client{Timeout: o.timeout}
	}

	switch name {
	case domain.GatewayStripe:
		stripeOpts := []stripe.Option{stripe.WithLogger(o.log), stripe.WithClock(o.clock)}
		if httpClient != nil {
			stripeOpts = append(stripeOpts, stripe.WithHTTPClient(httpClient))
		}
		return stripe.New(stripeOpts...), nil
	case domain.GatewayPaystack:
		paystackOpts := []paystack.Option{
			paystack.WithLogger(o.log),
			paystack.WithClock(o.clock),
			paystack.WithTimeout(o.timeout),
		}
		if httpClient != nil {
			paystackOpts = append(paystackOpts, paystack.WithHTTPClient(httpClient))
		}
		return paystack.New(paystackOpts...), nil
	case domain.GatewayFlutterwave, domain.GatewayPayPal, domain.GatewayRazorpay:
		return nil, domain.NewConfigurationError(name, "gateway not implemented")
	default:
		return nil, domain.NewConfigurationError(name, "unknown gateway")
	}
}

package stripe

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/zap"
)

var capabilities = domain.Capabilities{
	Currencies: []string{
		"USD", "EUR", "GBP", "CAD", "AUD", "NZD", "CHF",
		"SEK", "NOK", "DKK", "SGD", "HKD", "INR", "BRL", "MXN",
	},
	Methods: []domain.PaymentMethod{
		domain.PaymentMethodCard,
		domain.PaymentMethodWallet,
		domain.PaymentMethodSEPA,
		domain.PaymentMethodACH,
	},
}

type Option func(*Adapter)

func WithLogger(log *zap.Logger) Option {
	return func(a *Adapter) {
		if log != nil {
			a.log = log
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

func WithClock(c clock.Clock) Option {
	return func(a *Adapter) {
		if c != nil {
			a.clock = c
		}
	}
}

// Adapter talks to Stripe through the official SDK. It is unusable until
// Initialize succeeds.
type Adapter struct {
	log        *zap.Logger
	clock      clock.Clock
	httpClient *http.Client

	mu  sync.RWMutex
	cfg *domain.GatewayConfig
	api *client.API
}

func New(opts ...Option) *Adapter {
	a := &Adapter{
		log:   zap.NewNop(),
		clock: clock.SystemClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.Named("payment.stripe")
	return a
}

func (a *Adapter) Name() domain.GatewayName {
	return domain.GatewayStripe
}

func (a *Adapter) Initialize(cfg domain.GatewayConfig) error {
	if cfg.Gateway != domain.GatewayStripe {
		return domain.NewConfigurationError(domain.GatewayStripe, fmt.Sprintf("gateway config mismatch: got %q", cfg.Gateway))
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return domain.NewConfigurationError(domain.GatewayStripe, "secret key is required")
	}

	// GetBackendWithConfig fills in defaults on the config it is given, so
	// every backend gets its own copy.
	backendCfg := func(url string) *stripe.BackendConfig {
		out := &stripe.BackendConfig{
			HTTPClient:        a.httpClient,
			LeveledLogger:     a.log.Sugar(),
			MaxNetworkRetries: stripe.Int64(0),
		}
		if url != "" {
			out.URL = stripe.String(url)
		}
		return out
	}
	base := strings.TrimSpace(cfg.BaseURL)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg(base)),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg(base)),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg("")),
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	stored := cfg
	a.cfg = &stored
	a.api = api
	return nil
}

func (a *Adapter) SupportedCurrencies() []string {
	return append([]string(nil), capabilities.Currencies...)
}

func (a *Adapter) SupportedPaymentMethods() []domain.PaymentMethod {
	return append([]domain.PaymentMethod(nil), capabilities.Methods...)
}

func (a *Adapter) IsSupported(currency string, method domain.PaymentMethod) bool {
	return capabilities.IsSupported(currency, method)
}

func (a *Adapter) client() (*client.API, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.api == nil {
		return nil, notInitialized()
	}
	return a.api, nil
}

func (a *Adapter) config() (domain.GatewayConfig, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.cfg == nil {
		return domain.GatewayConfig{}, notInitialized()
	}
	return *a.cfg, nil
}

func notInitialized() error {
	err := domain.NewConfigurationError(domain.GatewayStripe, "adapter used before initialize")
	err.Err = domain.ErrNotInitialized
	return err
}

// gatewayError wraps an SDK failure, lifting the Stripe error code and
// request id into the metadata when present.
func gatewayError(message string, err error, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	var serr *stripe.Error
	if errors.As(err, &serr) {
		if serr.Code != "" {
			metadata["stripe_code"] = string(serr.Code)
		}
		if serr.RequestID != "" {
			metadata["request_id"] = serr.RequestID
		}
		if serr.HTTPStatusCode != 0 {
			metadata["http_status"] = serr.HTTPStatusCode
		}
	}
	return domain.NewGatewayError(domain.GatewayStripe, message, err, metadata)
}

func timestamp(primary int64, fallback time.Time) time.Time {
	if primary == 0 {
		return fallback
	}
	return time.Unix(primary, 0).UTC()
}

func optionalTime(value int64) *time.Time {
	if value == 0 {
		return nil
	}
	t := time.Unix(value, 0).UTC()
	return &t
}

package gateway

import (
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/observability/tracing"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"go.uber.org/zap"
)

// Registry holds the initialized adapters. It is built once at startup.
type Registry struct {
	mu       sync.RWMutex
	gateways map[domain.GatewayName]domain.Gateway
}

func NewRegistry(gateways ...domain.Gateway) *Registry {
	r := &Registry{gateways: map[domain.GatewayName]domain.Gateway{}}
	for _, gw := range gateways {
		r.Register(gw)
	}
	return r
}

func (r *Registry) Register(gw domain.Gateway) {
	if gw == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[gw.Name()] = gw
}

// Get returns the initialized adapter for name.
func (r *Registry) Get(name domain.GatewayName) (domain.Gateway, error) {
	if r == nil {
		return nil, domain.NewConfigurationError(name, "gateway not configured")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[name]
	if !ok {
		return nil, domain.NewConfigurationError(name, "gateway not configured")
	}
	return gw, nil
}

func (r *Registry) Names() []domain.GatewayName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.GatewayName, 0, len(r.gateways))
	for name := range r.gateways {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build initializes one adapter per gateway with credentials. Gateways that
// are configured but not implemented are skipped with a warning; an adapter
// that rejects its credentials fails the build.
func Build(cfg config.Config, log *zap.Logger, m *metrics.Metrics, opts ...Option) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("payment.gateway")

	base := []Option{WithLogger(log), WithTimeout(cfg.Payment.HTTPTimeout)}
	base = append(base, opts...)
	o := options{}
	for _, opt := range base {
		opt(&o)
	}
	if o.httpClient == nil {
		base = append(base, WithHTTPClient(tracing.WrapHTTPClient(newHTTPClient(o.timeout))))
	}

	registry := NewRegistry()
	for _, entry := range credentialsOf(cfg.Payment) {
		if !entry.creds.Configured() {
			continue
		}
		gw, err := New(entry.name, base...)
		if err != nil {
			var perr *domain.PaymentError
			if errors.As(err, &perr) && perr.Code == domain.CodeConfiguration {
				log.Warn("skipping configured gateway", zap.String("gateway", string(entry.name)), zap.Error(err))
				continue
			}
			return nil, err
		}
		if err := gw.Initialize(domain.GatewayConfig{
			Gateway:       entry.name,
			APIKey:        entry.creds.APIKey,
			SecretKey:     entry.creds.SecretKey,
			WebhookSecret: entry.creds.WebhookSecret,
			Environment:   domain.Environment(cfg.GatewayEnvironment()),
			BaseURL:       entry.creds.BaseURL,
		}); err != nil {
			return nil, err
		}
		registry.Register(Instrument(gw, m))
		log.Info("gateway initialized",
			zap.String("gateway", string(entry.name)),
			zap.String("environment", cfg.GatewayEnvironment()),
		)
	}
	if len(registry.Names()) == 0 {
		log.Warn("no payment gateway configured")
	}
	return registry, nil
}

type namedCredentials struct {
	name  domain.GatewayName
	creds config.GatewayCredentials
}

func credentialsOf(cfg config.PaymentConfig) []namedCredentials {
	return []namedCredentials{
		{domain.GatewayStripe, cfg.Stripe},
		{domain.GatewayPaystack, cfg.Paystack},
		{domain.GatewayFlutterwave, cfg.Flutterwave},
		{domain.GatewayPayPal, cfg.PayPal},
		{domain.GatewayRazorpay, cfg.Razorpay},
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

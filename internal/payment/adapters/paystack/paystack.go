package paystack

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"go.uber.org/zap"
)

var capabilities = domain.Capabilities{
	Currencies: []string{"NGN", "GHS", "ZAR", "KES", "USD"},
	Methods: []domain.PaymentMethod{
		domain.PaymentMethodCard,
		domain.PaymentMethodBankTransfer,
		domain.PaymentMethodUSSD,
		domain.PaymentMethodMobileMoney,
		domain.PaymentMethodQR,
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

// WithTimeout bounds every Paystack call when no custom client is supplied.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(a *Adapter) {
		if c != nil {
			a.clock = c
		}
	}
}

type Adapter struct {
	log        *zap.Logger
	clock      clock.Clock
	httpClient *http.Client
	timeout    time.Duration

	mu  sync.RWMutex
	cfg *domain.GatewayConfig
	api *apiClient
}

func New(opts ...Option) *Adapter {
	a := &Adapter{
		log:     zap.NewNop(),
		clock:   clock.SystemClock{},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.Named("payment.paystack")
	return a
}

func (a *Adapter) Name() domain.GatewayName {
	return domain.GatewayPaystack
}

func (a *Adapter) Initialize(cfg domain.GatewayConfig) error {
	if cfg.Gateway != domain.GatewayPaystack {
		return domain.NewConfigurationError(domain.GatewayPaystack, fmt.Sprintf("gateway config mismatch: got %q", cfg.Gateway))
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return domain.NewConfigurationError(domain.GatewayPaystack, "secret key is required")
	}

	httpClient := a.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: a.timeout}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	stored := cfg
	a.cfg = &stored
	a.api = newAPIClient(cfg.BaseURL, cfg.SecretKey, httpClient)
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

func (a *Adapter) client() (*apiClient, error) {
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
	err := domain.NewConfigurationError(domain.GatewayPaystack, "adapter used before initialize")
	err.Err = domain.ErrNotInitialized
	return err
}

func gatewayError(message string, err error, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		metadata["http_status"] = apiErr.StatusCode
		metadata["path"] = apiErr.Path
	}
	return domain.NewGatewayError(domain.GatewayPaystack, message, err, metadata)
}

var transactionStatuses = map[string]domain.PaymentStatus{
	"success":    domain.PaymentStatusCompleted,
	"failed":     domain.PaymentStatusFailed,
	"abandoned":  domain.PaymentStatusFailed,
	"reversed":   domain.PaymentStatusRefunded,
	"processed":  domain.PaymentStatusRefunded,
	"pending":    domain.PaymentStatusPending,
	"ongoing":    domain.PaymentStatusPending,
	"processing": domain.PaymentStatusPending,
	"queued":     domain.PaymentStatusPending,
	"disputed":   domain.PaymentStatusDisputed,
}

var subscriptionStatuses = map[string]domain.SubscriptionStatus{
	"active":       domain.SubscriptionStatusActive,
	"non-renewing": domain.SubscriptionStatusActive,
	"attention":    domain.SubscriptionStatusPastDue,
	"completed":    domain.SubscriptionStatusCanceled,
	"complete":     domain.SubscriptionStatusCanceled,
	"cancelled":    domain.SubscriptionStatusCanceled,
}

func mapPaymentStatus(status string) domain.PaymentStatus {
	if mapped, ok := transactionStatuses[strings.ToLower(status)]; ok {
		return mapped
	}
	return domain.PaymentStatusPending
}

func mapSubscriptionStatus(status string) domain.SubscriptionStatus {
	if mapped, ok := subscriptionStatuses[strings.ToLower(status)]; ok {
		return mapped
	}
	return domain.SubscriptionStatusPastDue
}

// planInterval maps a billing cycle onto a Paystack plan interval. Quarterly
// billing is charged monthly here.
func (a *Adapter) planInterval(cycle domain.BillingCycle) string {
	switch cycle {
	case domain.BillingCycleYearly:
		return "annually"
	case domain.BillingCycleQuarterly:
		a.log.Warn("quarterly billing is not supported, falling back to monthly")
		return "monthly"
	default:
		return "monthly"
	}
}

func channel(method domain.PaymentMethod) string {
	switch method {
	case domain.PaymentMethodBankTransfer:
		return "bank_transfer"
	case domain.PaymentMethodUSSD:
		return "ussd"
	case domain.PaymentMethodMobileMoney:
		return "mobile_money"
	case domain.PaymentMethodQR:
		return "qr"
	default:
		return "card"
	}
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

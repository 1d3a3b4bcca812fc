package domain

import (
	"context"
	"strings"
)

// GatewayName identifies an external payment processor.
type GatewayName string

const (
	GatewayStripe      GatewayName = "stripe"
	GatewayPaystack    GatewayName = "paystack"
	GatewayFlutterwave GatewayName = "flutterwave"
	GatewayPayPal      GatewayName = "paypal"
	GatewayRazorpay    GatewayName = "razorpay"
	GatewayUnknown     GatewayName = "unknown"
)

// ParseGatewayName normalizes user or config supplied gateway identifiers.
func ParseGatewayName(raw string) GatewayName {
	return GatewayName(strings.ToLower(strings.TrimSpace(raw)))
}

type Environment string

const (
	EnvironmentTest Environment = "test"
	EnvironmentLive Environment = "live"
)

// GatewayConfig carries the credentials of one gateway. It is set once at
// startup and never mutated afterwards. An empty BaseURL means the provider
// default endpoint.
type GatewayConfig struct {
	Gateway       GatewayName
	APIKey        string
	SecretKey     string
	WebhookSecret string
	Environment   Environment
	BaseURL       string
}

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodUSSD         PaymentMethod = "ussd"
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodQR           PaymentMethod = "qr"
	PaymentMethodWallet       PaymentMethod = "wallet"
	PaymentMethodSEPA         PaymentMethod = "sepa_debit"
	PaymentMethodACH          PaymentMethod = "ach_debit"
)

// Gateway is the contract every provider adapter implements. No method other
// than Initialize and the capability queries is usable before Initialize.
//
//go:generate mockgen -source=gateway.go -destination=./mocks/mock_gateway.go -package=mocks
type Gateway interface {
	Name() GatewayName
	Initialize(cfg GatewayConfig) error

	CreateCustomer(ctx context.Context, info CustomerInfo) (string, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResponse, error)
	ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error)
	CancelSubscription(ctx context.Context, req CancelSubscriptionRequest) (*CancelSubscriptionResponse, error)
	UpdateSubscription(ctx context.Context, req UpdateSubscriptionRequest) (*UpdateSubscriptionResponse, error)
	VerifyWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)

	SupportedCurrencies() []string
	SupportedPaymentMethods() []PaymentMethod
	IsSupported(currency string, method PaymentMethod) bool
}

// Capabilities backs the static capability queries shared by adapters.
type Capabilities struct {
	Currencies []string
	Methods    []PaymentMethod
}

func (c Capabilities) IsSupported(currency string, method PaymentMethod) bool {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	currencyOK := false
	for _, item := range c.Currencies {
		if item == currency {
			currencyOK = true
			break
		}
	}
	if !currencyOK {
		return false
	}
	if method == "" {
		return true
	}
	for _, item := range c.Methods {
		if item == method {
			return true
		}
	}
	return false
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool
	DBSeedPlans       bool

	// RedisURL enables the distributed payment locks when set.
	RedisURL string

	Payment PaymentConfig
}

// PaymentConfig is read once at startup and never mutated.
type PaymentConfig struct {
	Stripe      GatewayCredentials
	Paystack    GatewayCredentials
	Flutterwave GatewayCredentials
	PayPal      GatewayCredentials
	Razorpay    GatewayCredentials

	HTTPTimeout     time.Duration
	TrialDays       int
	DefaultCurrency string
	LockTTL         time.Duration
	RoutingFile     string
}

type GatewayCredentials struct {
	APIKey        string
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

// Configured reports whether enough credentials exist to initialize a gateway.
func (c GatewayCredentials) Configured() bool {
	return c.SecretKey != ""
}

const (
	GatewayEnvTest = "test"
	GatewayEnvLive = "live"
)

// GatewayEnvironment derives the provider mode from the deployment environment.
func (c Config) GatewayEnvironment() string {
	if c.Environment == "production" {
		return GatewayEnvLive
	}
	return GatewayEnvTest
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "paycore"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "paycore"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		DBSeedPlans:       getenvBool("DATABASE_SEED_PLANS", false),
		RedisURL:          strings.TrimSpace(getenv("REDIS_URL", "")),
		Payment: PaymentConfig{
			Stripe:          credentials("STRIPE"),
			Paystack:        credentials("PAYSTACK"),
			Flutterwave:     credentials("FLUTTERWAVE"),
			PayPal:          credentials("PAYPAL"),
			Razorpay:        credentials("RAZORPAY"),
			HTTPTimeout:     getenvDuration("PAYMENT_HTTP_TIMEOUT", 30*time.Second),
			TrialDays:       int(getenvInt64("PAYMENT_TRIAL_DAYS", 7)),
			DefaultCurrency: strings.ToUpper(getenv("PAYMENT_DEFAULT_CURRENCY", "USD")),
			LockTTL:         getenvDuration("PAYMENT_LOCK_TTL", 30*time.Second),
			RoutingFile:     strings.TrimSpace(getenv("PAYMENT_ROUTING_FILE", "")),
		},
	}

	return cfg
}

func credentials(prefix string) GatewayCredentials {
	return GatewayCredentials{
		APIKey:        strings.TrimSpace(getenv(prefix+"_PUBLIC_KEY", "")),
		SecretKey:     strings.TrimSpace(getenv(prefix+"_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(getenv(prefix+"_WEBHOOK_SECRET", "")),
		BaseURL:       strings.TrimSpace(getenv(prefix+"_API_BASE", "")),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/paycore/internal/config"
)

// Config holds observability configuration derived from environment variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	// GatewayMode is "test" or "live", attached to every span and log line
	// so sandbox traffic is never mistaken for real charges.
	GatewayMode string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
	OtelSamplePayments   bool
}

// LoadConfig layers OTEL_* and LOG_* variables over the application config.
// Tracing export is on only when a collector endpoint is known.
func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName: strings.TrimSpace(cfg.AppName),
		Environment: env("DEPLOYMENT_ENV", cfg.Environment),
		Version:     env("SERVICE_VERSION", cfg.AppVersion),
		GatewayMode: cfg.GatewayEnvironment(),

		LogLevel:  strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(env("LOG_FORMAT", "json")),

		OtelExporterEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(env("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", env("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:    envFloat("OTEL_SAMPLING_RATIO", 0.1),
		OtelSamplePayments:   envBool("OTEL_SAMPLE_PAYMENTS", true),
	}
	if out.ServiceName == "" {
		out.ServiceName = "paycore"
	}
	out.OtelEnabled = envBool("OTEL_ENABLED", out.OtelExporterEndpoint != "")
	return out
}

// Debug is true for an explicit debug level or a development environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func env(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(def)
}

func envBool(key string, def bool) bool {
	parsed, err := strconv.ParseBool(env(key, ""))
	if err != nil {
		return def
	}
	return parsed
}

func envFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(env(key, ""), 64)
	if err != nil {
		return def
	}
	return parsed
}

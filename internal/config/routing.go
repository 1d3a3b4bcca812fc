package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RoutingConfig is the currency to gateway preference table.
type RoutingConfig struct {
	Default    string            `mapstructure:"default"`
	Currencies map[string]string `mapstructure:"currencies"`
}

func DefaultRoutingConfig() RoutingConfig {
	currencies := map[string]string{}
	for _, c := range []string{"NGN", "GHS", "ZAR", "KES"} {
		currencies[c] = "paystack"
	}
	for _, c := range []string{"USD", "EUR", "GBP", "CAD", "AUD", "NZD", "CHF", "SEK", "NOK", "DKK", "SGD", "HKD", "INR", "BRL", "MXN"} {
		currencies[c] = "stripe"
	}
	return RoutingConfig{Default: "stripe", Currencies: currencies}
}

// GatewayFor returns the preferred gateway for currency, or the default.
func (c RoutingConfig) GatewayFor(currency string) string {
	if gw, ok := c.Currencies[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return gw
	}
	return c.Default
}

// CurrencyCodes lists every currency with an explicit preference, sorted.
func (c RoutingConfig) CurrencyCodes() []string {
	out := make([]string, 0, len(c.Currencies))
	for code := range c.Currencies {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

type RoutingConfigHolder struct {
	current atomic.Value // holds RoutingConfig
}

func NewStaticRoutingHolder(cfg RoutingConfig) *RoutingConfigHolder {
	holder := &RoutingConfigHolder{}
	holder.current.Store(normalizeRouting(cfg))
	return holder
}

// NewRoutingConfigHolder reads payment_routing.yml over the built-in table
// and keeps it current while the file changes. A missing file in the search
// paths means defaults; an explicit path must exist.
func NewRoutingConfigHolder(path string, log *zap.Logger) (*RoutingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.routing")

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("payment_routing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/paycore")
		v.AddConfigPath(".")
	}

	holder := &RoutingConfigHolder{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
		holder.current.Store(DefaultRoutingConfig())
		return holder, nil
	}

	cfg, err := decodeRouting(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)
	log.Info("routing config loaded",
		zap.String("file", v.ConfigFileUsed()),
		zap.Strings("currencies", cfg.CurrencyCodes()),
	)

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRouting(v)
		if err != nil {
			log.Warn("invalid routing config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("routing config reloaded",
			zap.String("file", e.Name),
			zap.String("default", updated.Default),
			zap.Strings("currencies", updated.CurrencyCodes()),
		)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *RoutingConfigHolder) Get() RoutingConfig {
	return h.current.Load().(RoutingConfig)
}

func decodeRouting(v *viper.Viper) (RoutingConfig, error) {
	var file RoutingConfig
	if err := v.UnmarshalKey("routing", &file); err != nil {
		return RoutingConfig{}, err
	}
	if err := validateRouting(file); err != nil {
		return RoutingConfig{}, err
	}

	file = normalizeRouting(file)
	merged := DefaultRoutingConfig()
	merged.Default = file.Default
	for code, gw := range file.Currencies {
		merged.Currencies[code] = gw
	}
	return merged, nil
}

func validateRouting(cfg RoutingConfig) error {
	for code, gw := range cfg.Currencies {
		if strings.TrimSpace(code) == "" {
			return errors.New("routing.currencies contains an empty currency")
		}
		if strings.TrimSpace(gw) == "" {
			return fmt.Errorf("routing.currencies.%s has no gateway", code)
		}
	}
	return nil
}

// normalizeRouting upper-cases currency keys, which viper lower-cases.
func normalizeRouting(cfg RoutingConfig) RoutingConfig {
	out := RoutingConfig{
		Default:    strings.ToLower(strings.TrimSpace(cfg.Default)),
		Currencies: make(map[string]string, len(cfg.Currencies)),
	}
	for code, gw := range cfg.Currencies {
		out.Currencies[strings.ToUpper(strings.TrimSpace(code))] = strings.ToLower(strings.TrimSpace(gw))
	}
	if out.Default == "" {
		out.Default = "stripe"
	}
	return out
}

package config

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config, log *zap.Logger) (*RoutingConfigHolder, error) {
		return NewRoutingConfigHolder(cfg.Payment.RoutingFile, log)
	}),
)

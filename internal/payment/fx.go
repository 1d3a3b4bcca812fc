package payment

import (
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/gateway"
	"github.com/smallbiznis/paycore/internal/payment/lock"
	"github.com/smallbiznis/paycore/internal/payment/repository"
	paymentservice "github.com/smallbiznis/paycore/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type registryParams struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

var Module = fx.Module("payment.service",
	lock.Module,
	fx.Provide(repository.Provide),
	fx.Provide(gateway.NewRouter),
	fx.Provide(func(p registryParams) (*gateway.Registry, error) {
		return gateway.Build(p.Config, p.Log, p.Metrics, gateway.WithClock(p.Clock))
	}),
	fx.Provide(paymentservice.NewService),
)

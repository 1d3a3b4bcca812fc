package seed

import (
	"context"

	"github.com/smallbiznis/paycore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, conn *gorm.DB, cfg config.Config, log *zap.Logger) {
		if !cfg.DBSeedPlans || cfg.Environment == "production" {
			return
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				n, err := EnsurePlans(ctx, conn, DefaultPlans())
				if err != nil {
					return err
				}
				log.Info("subscription plans seeded", zap.Int("inserted", n))
				return nil
			},
		})
	}),
)

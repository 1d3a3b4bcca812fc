package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/observability"
	obsmiddleware "github.com/smallbiznis/paycore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	obstracing "github.com/smallbiznis/paycore/internal/observability/tracing"
	"github.com/smallbiznis/paycore/internal/payment"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/gateway"
	paymentservice "github.com/smallbiznis/paycore/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	payment.Module,
	fx.Provide(registerGin),
	fx.Provide(func(svc *paymentservice.Service) PaymentService { return svc }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// PaymentService is the slice of the payment core exposed over HTTP.
type PaymentService interface {
	CreateSubscription(ctx context.Context, userID string, planID string, method domain.PaymentMethod) (*domain.Subscription, error)
	CancelSubscription(ctx context.Context, id snowflake.ID, cancelAtPeriodEnd bool) (*domain.Subscription, error)
	UpdateSubscription(ctx context.Context, id snowflake.ID, update paymentservice.SubscriptionUpdate) (*domain.Subscription, error)
	ProcessPayment(ctx context.Context, userID string, amount decimal.Decimal, description string, method domain.PaymentMethod) (*paymentservice.PaymentResult, error)
	HandleWebhook(ctx context.Context, name domain.GatewayName, payload []byte, signature string) error
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	paymentSvc PaymentService
	router     *gateway.Router
	gateways   *gateway.Registry
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	PaymentSvc PaymentService
	Router     *gateway.Router
	Gateways   *gateway.Registry `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		paymentSvc: p.PaymentSvc,
		router:     p.Router,
		gateways:   p.Gateways,
	}
	if svc.router == nil {
		svc.router = gateway.NewRouter(nil)
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	// -------- Subscriptions --------
	api.POST("/subscriptions", s.CreateSubscription)
	api.PATCH("/subscriptions/:id", s.UpdateSubscription)
	api.POST("/subscriptions/:id/cancel", s.CancelSubscription)

	// -------- Payments --------
	api.POST("/payments", s.ProcessPayment)

	// -------- Gateways --------
	api.GET("/gateways/route", s.RouteGateway)

	// -------- Webhooks --------
	api.POST("/webhooks/:gateway", s.HandlePaymentWebhook)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

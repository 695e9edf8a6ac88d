package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fatflowers/payment-engine/docs"
	"github.com/fatflowers/payment-engine/internal/app/api/handlers"
	mw "github.com/fatflowers/payment-engine/internal/app/api/middleware"
	"github.com/fatflowers/payment-engine/internal/app/service/payment"
	"github.com/fatflowers/payment-engine/internal/app/service/reconcile"
	"github.com/fatflowers/payment-engine/internal/app/service/refund"
	cfgpkg "github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Engine     *gin.Engine
	Log        *zap.SugaredLogger
	Prometheus *metrics.Prometheus `optional:"true"`
	Payments   *payment.Service
	Refunds    *refund.Service
	Reconciler *reconcile.Service
}

func registerRoutes(d routeDeps) {
	if d.Prometheus != nil {
		// metrics are scraped from the separate listener
		d.Engine.Use(d.Prometheus.HandlerFunc())
	}

	pub := d.Engine.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub, d.Payments, d.Log)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	payments := d.Engine.Group("/payments")
	payments.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())
	handlers.RegisterPaymentRoutes(payments, d.Payments, d.Refunds, d.Log)
	handlers.RegisterWebhookRoutes(payments.Group("/webhook"), d.Reconciler, d.Log)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)

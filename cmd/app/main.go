package main

import (
	"bbpayment/cmd/fx/config_fx"
	"bbpayment/cmd/fx/controllers_fx"
	"bbpayment/cmd/fx/db_fx"
	"bbpayment/cmd/fx/events_fx"
	"bbpayment/cmd/fx/payment_service_fx"
	"bbpayment/cmd/fx/providers_fx"
	"bbpayment/cmd/fx/redis_fx"
	"bbpayment/cmd/fx/scheduler_fx"
	"bbpayment/internal/api/controllers"
	"bbpayment/internal/config"
	"bbpayment/pkg/middleware"
	"bbpayment/pkg/utils"
	"context"
	"errors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"net"
	"net/http"
	"time"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		config_fx.Module,
		db_fx.Module,
		redis_fx.Module,
		providers_fx.Module,
		payment_service_fx.Module,
		events_fx.Module,
		scheduler_fx.Module,
		controllers_fx.Module,

		fx.Provide(ProvideRouter),
		fx.Invoke(StartServer),
	)

	app.Run()
}

func StartServer(lc fx.Lifecycle, cfg *config.Config, engine *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("starting HTTP server", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("HTTP server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}

type routeControllers struct {
	fx.In

	Payment      *controllers.PaymentController
	Callback     *controllers.CallbackController
	Pricing      *controllers.PricingController
	Voucher      *controllers.VoucherController
	Subscription *controllers.SubscriptionController
	Admin        *controllers.AdminController
}

func ProvideRouter(cfg *config.Config, log *zap.Logger, ctrl routeControllers) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.TraceIDMiddleware())
	r.Use(middleware.RequestLogger(log))
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.TraceHeader},
		ExposeHeaders:    []string{middleware.TraceHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	RegisterRoutes(r, cfg, ctrl)

	return r
}

func RegisterRoutes(r *gin.Engine, cfg *config.Config, ctrl routeControllers) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	limiter := middleware.NewIPRateLimiter(cfg.CallbackRateLimit, cfg.CallbackRateBurst)
	callbacks := r.Group("/callbacks", limiter.Middleware())
	callbacks.GET("/:provider/:shape", ctrl.Callback.HandleCallback)
	callbacks.POST("/:provider/:shape", ctrl.Callback.HandleCallback)

	r.GET("/plans", ctrl.Pricing.ListPlans)
	r.GET("/plans/:id", ctrl.Pricing.GetPlan)
	r.GET("/providers", ctrl.Payment.ListProviders)

	auth := r.Group("/", middleware.JWTAuthMiddleware([]byte(cfg.JWTSecret)))
	auth.POST("/pricing/quote", ctrl.Pricing.Quote)

	payments := auth.Group("/payments")
	payments.POST("", ctrl.Payment.CreatePayment)
	payments.GET("", ctrl.Payment.ListPayments)
	payments.GET("/:id", ctrl.Payment.GetPayment)
	payments.GET("/:id/query", ctrl.Payment.QueryPayment)
	payments.POST("/:id/refund", ctrl.Payment.RefundPayment)

	vouchers := auth.Group("/vouchers")
	vouchers.GET("/available", ctrl.Voucher.ListAvailable)
	vouchers.GET("/:code/check", ctrl.Voucher.CheckVoucher)

	subs := auth.Group("/subscriptions")
	subs.GET("/me", ctrl.Subscription.GetMine)
	subs.POST("/:id/cancel", ctrl.Subscription.Cancel)
	subs.POST("/:id/auto-renew", ctrl.Subscription.SetAutoRenew)

	admin := auth.Group("/admin", middleware.RoleMiddleware(utils.RoleAdmin))
	admin.POST("/plans", ctrl.Pricing.CreatePlan)

	admin.GET("/vouchers", ctrl.Voucher.ListVouchers)
	admin.POST("/vouchers", ctrl.Voucher.CreateVoucher)
	admin.GET("/vouchers/:id", ctrl.Voucher.GetVoucher)
	admin.PUT("/vouchers/:id", ctrl.Voucher.UpdateVoucher)
	admin.DELETE("/vouchers/:id", ctrl.Voucher.DeleteVoucher)

	admin.GET("/campaigns", ctrl.Voucher.ListCampaigns)
	admin.POST("/campaigns", ctrl.Voucher.CreateCampaign)
	admin.GET("/campaigns/:id", ctrl.Voucher.GetCampaign)
	admin.PUT("/campaigns/:id", ctrl.Voucher.UpdateCampaign)
	admin.DELETE("/campaigns/:id", ctrl.Voucher.DeleteCampaign)

	admin.GET("/subscriptions/analytics", ctrl.Admin.Analytics)
	admin.GET("/outbox", ctrl.Admin.ListOutbox)
	admin.POST("/outbox/:id/retry", ctrl.Admin.RetryOutbox)
	admin.GET("/reconciliation-issues", ctrl.Admin.ListIssues)
	admin.POST("/reconciliation-issues/:id/resolve", ctrl.Admin.ResolveIssue)
	admin.POST("/jobs/:job/run", ctrl.Admin.RunJob)
}

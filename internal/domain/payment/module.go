package payment

import (
	"time"

	catalogRepo "course_checkout/internal/domain/catalog/repository"
	catalogService "course_checkout/internal/domain/catalog/service"
	couponRepo "course_checkout/internal/domain/coupon/repository"
	couponService "course_checkout/internal/domain/coupon/service"
	enrollmentRepo "course_checkout/internal/domain/enrollment/repository"
	"course_checkout/internal/domain/payment/gateway"
	"course_checkout/internal/domain/payment/handler"
	"course_checkout/internal/domain/payment/repository"
	"course_checkout/internal/domain/payment/service"
	"course_checkout/internal/pkg/middleware"
	"course_checkout/internal/pkg/registry"
	"course_checkout/pkg/security"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// PaymentModule 下单、结算与网关通知
type PaymentModule struct{}

func init() {
	registry.Register(&PaymentModule{})
}

func (m *PaymentModule) Name() string {
	return "payment"
}

func (m *PaymentModule) Priority() int {
	// 依赖课程与优惠券
	return 30
}

func (m *PaymentModule) Init(ctx *registry.ModuleContext) error {
	cfg := ctx.Config

	// 1. 依赖注入
	courses := catalogRepo.NewCourseRepository(ctx.DB)
	prices := catalogService.NewPriceCalculator(courses)
	coupons := couponService.NewCouponService(couponRepo.NewCouponRepository(ctx.DB), cfg.Pricing.MinFinalAmount)
	orders := repository.NewOrderRepository(ctx.DB)
	payments := repository.NewPaymentRecordRepository(ctx.DB)
	verifier := security.NewSignatureVerifier(cfg.Gateway.KeySecret, cfg.Gateway.WebhookSecret)

	orderService := service.NewOrderService(
		orders,
		prices,
		coupons,
		gateway.NewRazorpayClient(cfg.Gateway),
		service.OrderOptions{
			KeyID:           cfg.Gateway.KeyID,
			DefaultCurrency: cfg.Gateway.Currency,
			GatewayTimeout:  cfg.Gateway.Timeout,
		},
		ctx.Logger,
		ctx.Metrics,
	)

	ledger := service.NewSettlementLedger(service.SettlementDeps{
		DB:          ctx.DB,
		Orders:      orders,
		Payments:    payments,
		Enrollments: enrollmentRepo.NewEnrollmentRepository(ctx.DB),
		Courses:     courses,
		Coupons:     coupons,
		Verifier:    verifier,
		Monitor:     ctx.Monitor,
		Locker:      ctx.Locker,
		Notifier:    ctx.Notifier,
		Logger:      ctx.Logger,
		Metrics:     ctx.Metrics,
	})

	webhooks := service.NewWebhookService(payments, ledger, verifier, ctx.Monitor, ctx.Logger, ctx.Metrics)

	pHandler := handler.NewPaymentHandler(orderService, ledger, webhooks)

	// 2. 路由注册
	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.Settlement.RateLimitQPS), cfg.Settlement.RateLimitBurst)
	if ctx.Background != nil {
		go limiter.RunCleanup(ctx.Background, time.Minute, 10*time.Minute)
	}
	setupRoutes(ctx.Router, pHandler, middleware.RateLimitMiddleware(limiter, ctx.Monitor))

	return nil
}

func setupRoutes(r *gin.Engine, h *handler.PaymentHandler, limit gin.HandlerFunc) {
	g := r.Group("/payment")

	// 网关回调 (可匿名，但必须验签)
	g.POST("/settle", limit, middleware.OptionalAuthMiddleware(), h.Settle)
	g.POST("/webhook", limit, h.Webhook)

	// 需要鉴权的接口
	auth := g.Group("/orders")
	auth.Use(middleware.AuthMiddleware())
	{
		auth.POST("", h.CreateOrder)
		auth.GET("/:id", h.GetOrder)
		auth.POST("/:id/retry", h.RetryOrder)
		auth.POST("/:id/cancel", h.CancelOrder)
	}
}

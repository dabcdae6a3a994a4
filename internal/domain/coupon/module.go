package coupon

import (
	catalogRepo "course_checkout/internal/domain/catalog/repository"
	catalogService "course_checkout/internal/domain/catalog/service"
	"course_checkout/internal/domain/coupon/handler"
	"course_checkout/internal/domain/coupon/repository"
	"course_checkout/internal/domain/coupon/service"
	"course_checkout/internal/pkg/middleware"
	"course_checkout/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// CouponModule 优惠券模块
type CouponModule struct{}

func init() {
	registry.Register(&CouponModule{})
}

func (m *CouponModule) Name() string {
	return "coupon"
}

func (m *CouponModule) Priority() int {
	return 10
}

func (m *CouponModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	prices := catalogService.NewPriceCalculator(catalogRepo.NewCourseRepository(ctx.DB))
	cService := service.NewCouponService(repository.NewCouponRepository(ctx.DB), ctx.Config.Pricing.MinFinalAmount)
	cHandler := handler.NewCouponHandler(prices, cService)

	// 2. 路由注册
	setupRoutes(ctx.Router, cHandler)

	return nil
}

func setupRoutes(r *gin.Engine, h *handler.CouponHandler) {
	g := r.Group("/coupons")
	g.Use(middleware.AuthMiddleware())
	{
		g.POST("/validate", h.ValidateCoupon)
	}
}

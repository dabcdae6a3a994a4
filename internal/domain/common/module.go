package common

import (
	"context"
	"net/http"
	"time"

	commonHandler "course_checkout/internal/pkg/common"
	"course_checkout/internal/pkg/registry"
	"course_checkout/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// CommonModule 探活、指标与接口文档
type CommonModule struct{}

func init() {
	registry.Register(&CommonModule{})
}

func (m *CommonModule) Name() string {
	return "common"
}

func (m *CommonModule) Priority() int {
	return 100 // 最后初始化
}

func (m *CommonModule) Init(ctx *registry.ModuleContext) error {
	gatherer := ctx.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	setupRoutes(ctx.Router, ctx.DB, ctx.Redis, gatherer, ctx.Config != nil && ctx.Config.App.Debug)
	return nil
}

func setupRoutes(r *gin.Engine, db *gorm.DB, rdb *redis.Client, gatherer prometheus.Gatherer, withDocs bool) {
	r.GET("/health", commonHandler.Health)
	r.GET("/ready", readiness(db, rdb))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if withDocs {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
}

// readiness 数据库必须可用；Redis 只影响分布式锁，不可用时降级
func readiness(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"database": "ok"}
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			status["database"] = "down"
			response.ErrorWithData(c, http.StatusServiceUnavailable, response.ErrServerInternal, "database unavailable", status)
			return
		}

		switch {
		case rdb == nil:
			status["redis"] = "disabled"
		case rdb.Ping(ctx).Err() != nil:
			status["redis"] = "degraded"
		default:
			status["redis"] = "ok"
		}
		response.Success(c, status)
	}
}

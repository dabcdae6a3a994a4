package registry

import (
	"context"
	"sort"

	"course_checkout/internal/pkg/config"
	"course_checkout/internal/pkg/locker"
	"course_checkout/internal/pkg/worker"
	"course_checkout/pkg/metrics"
	"course_checkout/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ModuleContext 模块初始化所需的上下文
type ModuleContext struct {
	DB       *gorm.DB
	Redis    *redis.Client // 可能为 nil
	Router   *gin.Engine
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.MetricsCollector
	Gatherer prometheus.Gatherer // /metrics 暴露的注册表
	Monitor  *security.SecurityMonitor
	Locker   locker.Locker
	Notifier worker.Notifier

	// Background 后台任务的生命周期，服务关闭时取消
	Background context.Context
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	Priority() int
}

// moduleRegistry 全局模块注册表
var moduleRegistry = make(map[string]Module)

// Register 注册模块
func Register(module Module) {
	moduleRegistry[module.Name()] = module
}

// GetModules 获取所有已注册的模块
func GetModules() map[string]Module {
	return moduleRegistry
}

// InitModules 按优先级初始化所有模块，同优先级按名称排序保证顺序稳定
func InitModules(ctx *ModuleContext) error {
	modules := make([]Module, 0, len(moduleRegistry))
	for _, m := range moduleRegistry {
		modules = append(modules, m)
	}

	sort.Slice(modules, func(i, j int) bool {
		if modules[i].Priority() != modules[j].Priority() {
			return modules[i].Priority() < modules[j].Priority()
		}
		return modules[i].Name() < modules[j].Name()
	})

	for _, module := range modules {
		if err := module.Init(ctx); err != nil {
			return err
		}
	}

	return nil
}

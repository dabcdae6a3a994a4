package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "course_checkout/docs"
	_ "course_checkout/internal/domain/common"
	_ "course_checkout/internal/domain/coupon"
	_ "course_checkout/internal/domain/enrollment"
	_ "course_checkout/internal/domain/payment"
	"course_checkout/internal/pkg/config"
	"course_checkout/internal/pkg/locker"
	"course_checkout/internal/pkg/middleware"
	"course_checkout/internal/pkg/push"
	"course_checkout/internal/pkg/registry"
	"course_checkout/internal/pkg/worker"
	"course_checkout/pkg/database"
	"course_checkout/pkg/logger"
	"course_checkout/pkg/metrics"
	"course_checkout/pkg/security"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// @title Course Checkout API
// @version 1.0
// @description 课程购买: 下单、优惠券、支付验签结算与报名查询
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 1. 配置与日志
	config.LoadConfig()
	cfg := &config.GlobalConfig

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Log

	gin.SetMode(cfg.Server.Mode)

	// 2. 存储
	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}

	rdb, err := database.InitRedis(cfg.Redis, log)
	if err != nil {
		// Redis 只承载结算锁，不可用时退化为数据库行锁
		log.Warn("redis unavailable, continuing without distributed lock", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// 3. 指标与安全监控
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := metrics.NewMetricsCollector(reg)

	monitor := security.NewSecurityMonitor(metricsCollector, log)
	monitor.AddAlertHandler(security.NewLogAlertHandler(log))

	// 4. 通知队列
	pool := worker.NewWorkerPool(
		push.NewPushService(cfg.Push, log),
		cfg.Notify.Workers,
		cfg.Notify.QueueSize,
		cfg.Notify.MaxRetry,
		log,
		metricsCollector,
	)
	pool.Start()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go database.NewPoolMonitor(db, metricsCollector, log, 15*time.Second).Run(bgCtx)

	// 5. 路由
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.TraceMiddleware(),
		middleware.LoggerMiddleware(),
		metricsCollector.GinMiddleware(),
		cors.New(corsConfig(cfg.Server.AllowOrigins)),
	)

	if err := registry.InitModules(&registry.ModuleContext{
		DB:         db,
		Redis:      rdb,
		Router:     r,
		Config:     cfg,
		Logger:     log,
		Metrics:    metricsCollector,
		Gatherer:   reg,
		Monitor:    monitor,
		Locker:     locker.New(rdb, cfg.Settlement.LockTTL, cfg.Settlement.LockTries, log),
		Notifier:   pool,
		Background: bgCtx,
	}); err != nil {
		log.Fatal("init modules", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 先停止接收请求，再排空通知队列
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	bgCancel()
	pool.Stop()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server stopped")
}

func corsConfig(allowOrigins string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	origins := strings.Split(allowOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	if allowOrigins == "" || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

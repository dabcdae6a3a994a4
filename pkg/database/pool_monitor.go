package database

import (
	"context"
	"time"

	"course_checkout/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PoolMonitor 定期把连接池状态写入指标，等待过多时告警
type PoolMonitor struct {
	db       *gorm.DB
	metrics  *metrics.MetricsCollector
	log      *zap.Logger
	interval time.Duration

	lastWaitCount int64
}

func NewPoolMonitor(db *gorm.DB, m *metrics.MetricsCollector, log *zap.Logger, interval time.Duration) *PoolMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PoolMonitor{db: db, metrics: m, log: log.Named("db_pool"), interval: interval}
}

// Run 阻塞直到 ctx 取消
func (pm *PoolMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.collect()
		}
	}
}

func (pm *PoolMonitor) collect() {
	sqlDB, err := pm.db.DB()
	if err != nil {
		pm.log.Warn("cannot read pool stats", zap.Error(err))
		return
	}
	stats := sqlDB.Stats()
	pm.metrics.UpdateDBConnections(stats.InUse, stats.Idle)

	// 结算事务持有行锁，等待增加说明池子偏小或事务过长
	if waited := stats.WaitCount - pm.lastWaitCount; waited > 0 {
		pm.log.Warn("connections waited for pool",
			zap.Int64("waits", waited),
			zap.Duration("wait_total", stats.WaitDuration),
			zap.Int("max_open", stats.MaxOpenConnections),
		)
	}
	pm.lastWaitCount = stats.WaitCount
}

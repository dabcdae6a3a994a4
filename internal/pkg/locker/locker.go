// Package locker 提供按 key 的分布式互斥锁
package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker 获取锁成功后返回释放函数
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// RedsyncLocker 基于 Redis 的分布式锁
type RedsyncLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
	log    *zap.Logger
}

func NewRedsyncLocker(rdb *redis.Client, expiry time.Duration, tries int, log *zap.Logger) *RedsyncLocker {
	if log == nil {
		log = zap.NewNop()
	}
	if tries <= 0 {
		tries = 1
	}
	pool := goredis.NewPool(rdb)
	return &RedsyncLocker{
		rs:     redsync.New(pool),
		expiry: expiry,
		tries:  tries,
		log:    log,
	}
}

func (l *RedsyncLocker) Acquire(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(
		key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	return func() {
		// 调用方的 ctx 可能已取消，释放锁使用独立超时
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := mutex.UnlockContext(unlockCtx); err != nil {
			l.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// NopLocker 未配置 Redis 时使用，串行化完全依赖数据库行锁
type NopLocker struct{}

func (NopLocker) Acquire(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

// New 根据是否配置 Redis 选择实现
func New(rdb *redis.Client, expiry time.Duration, tries int, log *zap.Logger) Locker {
	if rdb == nil {
		return NopLocker{}
	}
	return NewRedsyncLocker(rdb, expiry, tries, log)
}

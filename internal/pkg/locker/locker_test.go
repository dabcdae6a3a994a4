package locker

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopLocker(t *testing.T) {
	l := New(nil, time.Second, 1, nil)

	unlock, err := l.Acquire(context.Background(), "settle:order_1")
	require.NoError(t, err)
	assert.NotPanics(t, unlock)
}

func TestRedsyncLockerUnreachableRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	defer rdb.Close()

	l := New(rdb, time.Second, 1, nil)
	_, ok := l.(*RedsyncLocker)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := l.Acquire(ctx, "settle:order_1")
	assert.Error(t, err)
}

package redis_client

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	maxPool     = 512
	pingTimeout = 5 * time.Second
)

// poolSize scales with the CPUs: bid appends, pub/sub and the stream tailer share the pool.
func poolSize(cpus int) int {
	return min(cpus*8, maxPool)
}

func options(host string, port int) *redis.Options {
	return &redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		PoolSize: poolSize(runtime.NumCPU()),
	}
}

// NewRedisClient connects and pings the auctions Redis.
func NewRedisClient(host string, port int) (*redis.Client, error) {
	rc := redis.NewClient(options(host, port))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		err = fmt.Errorf("redis connection failed: %w", err)
		zap.L().Error("redis_connect", zap.String("addr", rc.Options().Addr), zap.Error(err))
		return nil, err
	}
	return rc, nil
}

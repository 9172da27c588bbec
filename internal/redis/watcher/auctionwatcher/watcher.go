package auctionwatcher

import (
	"context"
	"strings"

	"bidtobuy/internal/ledger/redisledger"
	"bidtobuy/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Finalizer settles an auction once its close timer fires.
type Finalizer interface {
	Finalize(ctx context.Context, key models.AuctionKey) error
}

// Run listens to key-expiry events of the auction close timers and settles the auctions.
// Start it once at service boot.
func Run(ctx context.Context, rdb *redis.Client, svc Finalizer) {
	if err := rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		zap.L().Warn("auctionwatcher_config", zap.Error(err))
	}
	ps := rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			handleExpired(ctx, m.Payload, svc)
		}
	}
}

// handleExpired reports whether the expired key was an auction close timer.
func handleExpired(ctx context.Context, expiredKey string, svc Finalizer) bool {
	if !strings.HasPrefix(expiredKey, redisledger.TimerKeyPrefix) {
		return false
	}
	key, ok := models.ParseAuctionKey(strings.TrimPrefix(expiredKey, redisledger.TimerKeyPrefix))
	if !ok {
		return false
	}
	// errors already logged in svc
	_ = svc.Finalize(ctx, key)
	return true
}

// Package redisledger keeps the live bid book in Redis. The check-insert-demote sequence runs
// inside the bid_append Lua function, so Redis serializes it per call.
package redisledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/ledger"
	"bidtobuy/internal/models"
	"bidtobuy/internal/money"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// Stream carries every bid insert and status change for the Postgres archive.
	Stream = "bids_stream"
	// TimerKeyPrefix keys expire at auction end; the watcher listens for their expiry.
	TimerKeyPrefix = "auc_t:"

	activeSet       = "aucs:active"
	auctionPrefix   = "auc:"
	bidPrefix       = "bid:"
	bidderPrefix    = "bidder:"
	errTooLowPrefix = "bid_too_low:"
)

func auctionKey(k models.AuctionKey) string     { return auctionPrefix + k.String() }
func auctionBidsKey(k models.AuctionKey) string { return auctionPrefix + k.String() + ":bids" }
func bidKey(id string) string                   { return bidPrefix + id }
func bidderKey(uid string) string               { return bidderPrefix + uid + ":bids" }

type RedisLedger struct {
	rdc *redis.Client
}

var (
	_ ledger.Ledger     = (*RedisLedger)(nil)
	_ ledger.CloseTimer = (*RedisLedger)(nil)
)

func New(rdc *redis.Client) *RedisLedger { return &RedisLedger{rdc: rdc} }

func (l *RedisLedger) Append(ctx context.Context, bid models.Bid, floor float64) (*ledger.AppendResult, error) {
	key := bid.Key()
	demoted, err := l.rdc.FCall(ctx, "bid_append",
		[]string{
			auctionKey(key),
			auctionBidsKey(key),
			bidKey(bid.ID),
			bidderKey(bid.BidderUserID),
			activeSet,
			Stream,
		},
		bid.ID,
		bid.BidderUserID,
		bid.Category,
		bid.ItemID,
		money.Format(bid.Amount),
		money.Format(floor),
		bid.BidTime.UnixMilli(),
		key.String(),
	).Slice()
	if err != nil {
		return nil, mapScriptError(err)
	}

	stored := bid
	stored.Status = models.BidActive
	res := &ledger.AppendResult{Bid: stored}
	if len(demoted) > 0 {
		// the bid is committed; a malformed leader record only costs the outbid notice
		prev, err := parseBid(fieldMap(demoted))
		if err != nil {
			zap.L().Warn("redis_demoted_bid_unreadable", zap.String("bid_id", bid.ID), zap.Error(err))
		} else {
			res.Previous = prev
		}
	}
	return res, nil
}

// fieldMap turns a flat HGETALL reply into a map.
func fieldMap(vals []any) map[string]string {
	m := make(map[string]string, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		k, _ := vals[i].(string)
		v, _ := vals[i+1].(string)
		m[k] = v
	}
	return m
}

func mapScriptError(err error) error {
	msg := err.Error()
	if i := strings.Index(msg, errTooLowPrefix); i >= 0 {
		cur, perr := strconv.ParseFloat(strings.TrimSpace(msg[i+len(errTooLowPrefix):]), 64)
		if perr != nil {
			return fmt.Errorf("bid_append: %w", err)
		}
		return biderrors.TooLow(cur)
	}
	if strings.Contains(msg, "auction_closed") {
		return biderrors.ErrAuctionClosed
	}
	return err
}

func parseBid(m map[string]string) (*models.Bid, error) {
	if len(m) == 0 {
		return nil, redis.Nil
	}
	amount, err := strconv.ParseFloat(m["amount"], 64)
	if err != nil {
		return nil, fmt.Errorf("bid %s amount: %w", m["id"], err)
	}
	at, err := strconv.ParseInt(m["at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bid %s time: %w", m["id"], err)
	}
	return &models.Bid{
		ID:           m["id"],
		BidderUserID: m["bidder"],
		Category:     m["category"],
		ItemID:       m["item"],
		Amount:       amount,
		BidTime:      time.UnixMilli(at).UTC(),
		Status:       models.BidStatus(m["st"]),
	}, nil
}

func (l *RedisLedger) getBid(ctx context.Context, id string) (*models.Bid, error) {
	m, err := l.rdc.HGetAll(ctx, bidKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseBid(m)
}

func (l *RedisLedger) getBids(ctx context.Context, ids []string) ([]models.Bid, error) {
	out := make([]models.Bid, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	pipe := l.rdc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, bidKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	for _, cmd := range cmds {
		b, err := parseBid(cmd.Val())
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

func (l *RedisLedger) HighestBid(ctx context.Context, key models.AuctionKey) (*models.Bid, error) {
	id, err := l.rdc.HGet(ctx, auctionKey(key), "hbid").Result()
	if errors.Is(err, redis.Nil) || (err == nil && id == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b, err := l.getBid(ctx, id)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (l *RedisLedger) History(ctx context.Context, key models.AuctionKey) ([]models.Bid, error) {
	ids, err := l.rdc.ZRevRange(ctx, auctionBidsKey(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	bids, err := l.getBids(ctx, ids)
	if err != nil {
		return nil, err
	}
	ledger.SortHistory(bids)
	return bids, nil
}

func (l *RedisLedger) BidsByBidder(ctx context.Context, bidderID string) ([]models.Bid, error) {
	ids, err := l.rdc.ZRevRange(ctx, bidderKey(bidderID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	bids, err := l.getBids(ctx, ids)
	if err != nil {
		return nil, err
	}
	ledger.SortNewestFirst(bids)
	return bids, nil
}

func (l *RedisLedger) Settle(ctx context.Context, key models.AuctionKey) (*models.Bid, int, error) {
	reply, err := l.rdc.FCall(ctx, "bid_settle",
		[]string{
			auctionKey(key),
			auctionBidsKey(key),
			activeSet,
			Stream,
		},
		key.String(),
	).Slice()
	if err != nil {
		return nil, 0, fmt.Errorf("bid_settle %s: %w", key, err)
	}
	if len(reply) == 0 {
		return nil, 0, fmt.Errorf("bid_settle %s: empty reply", key)
	}
	changed, _ := reply[0].(int64)
	if len(reply) == 1 {
		return nil, int(changed), nil
	}
	winner, err := parseBid(fieldMap(reply[1:]))
	if err != nil {
		return nil, int(changed), fmt.Errorf("bid_settle %s winner: %w", key, err)
	}
	return winner, int(changed), nil
}

func (l *RedisLedger) UnsettledAuctions(ctx context.Context) ([]models.AuctionKey, error) {
	members, err := l.rdc.SMembers(ctx, activeSet).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]models.AuctionKey, 0, len(members))
	for _, m := range members {
		if k, ok := models.ParseAuctionKey(m); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// ArmCloseTimer sets a key that expires at end so the expiry watcher can settle the auction.
// An already armed timer is left alone.
func (l *RedisLedger) ArmCloseTimer(ctx context.Context, key models.AuctionKey, end time.Time) error {
	ttl := time.Until(end)
	if ttl <= 0 {
		return nil
	}
	return l.rdc.SetNX(ctx, TimerKeyPrefix+key.String(), 1, ttl).Err()
}

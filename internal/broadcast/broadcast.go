// Package broadcast emits live bid events on a Redis pub/sub channel per auction.
// Delivery is at-most-once; websocket instances subscribe to the channels of their rooms.
package broadcast

import (
	"context"
	"encoding/json"

	"bidtobuy/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	EventVersion = 1
	EventBid     = "bid"
)

type Publisher interface {
	PublishBid(ctx context.Context, bid models.Bid) error
}

// Event is the payload published for every accepted bid.
type Event struct {
	Version int         `json:"version"`
	Event   string      `json:"event"`
	Auction string      `json:"auction"`
	Bid     *models.Bid `json:"bid,omitempty"`
}

// Channel is the pub/sub channel of one auction.
func Channel(key models.AuctionKey) string { return "auc:" + key.String() + ":events" }

type RedisPublisher struct {
	rdc *redis.Client
}

var _ Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(rdc *redis.Client) *RedisPublisher { return &RedisPublisher{rdc: rdc} }

func (p *RedisPublisher) PublishBid(ctx context.Context, bid models.Bid) error {
	key := bid.Key()
	payload, err := json.Marshal(Event{
		Version: EventVersion,
		Event:   EventBid,
		Auction: key.String(),
		Bid:     &bid,
	})
	if err != nil {
		return err
	}
	return p.rdc.Publish(ctx, Channel(key), payload).Err()
}

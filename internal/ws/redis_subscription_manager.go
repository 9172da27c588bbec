package ws

import (
	"context"
	"encoding/json"
	"sync"

	"bidtobuy/internal/broadcast"
	"bidtobuy/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// subscriptionManager holds exactly one Redis subscription per auction channel, however many
// websocket clients share the room.
type subscriptionManager struct {
	ctx  context.Context
	rdb  *redis.Client
	hub  *Hub
	mu   sync.Mutex
	subs map[models.AuctionKey]*subEntry
}

type subEntry struct {
	refCnt int
	cancel context.CancelFunc
}

func newSubscriptionManager(ctx context.Context, rdb *redis.Client, hub *Hub) *subscriptionManager {
	return &subscriptionManager{
		ctx:  ctx,
		rdb:  rdb,
		hub:  hub,
		subs: make(map[models.AuctionKey]*subEntry),
	}
}

// Subscribe ensures the process listens on the auction's channel; later calls for the same
// auction only bump the reference count.
func (sm *subscriptionManager) Subscribe(key models.AuctionKey) {
	sm.mu.Lock()
	if e, ok := sm.subs[key]; ok {
		e.refCnt++
		sm.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(sm.ctx)
	ps := sm.rdb.Subscribe(ctx, broadcast.Channel(key))

	sm.subs[key] = &subEntry{refCnt: 1, cancel: cancel}
	sm.mu.Unlock()

	go func() {
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
				wrapped, err := wrapRedisEvent(m.Payload)
				if err != nil {
					zap.L().Warn("ws_wrap_event_failed", zap.String("auction", key.String()), zap.Error(err))
					wrapped = []byte(m.Payload)
				}
				sm.hub.Broadcast(key, wrapped)
			}
		}
	}()
}

// Unsubscribe drops a reference and tears the subscription down when the last client leaves.
func (sm *subscriptionManager) Unsubscribe(key models.AuctionKey) {
	sm.mu.Lock()
	e, ok := sm.subs[key]
	if !ok {
		sm.mu.Unlock()
		return
	}
	e.refCnt--
	if e.refCnt > 0 {
		sm.mu.Unlock()
		return
	}
	delete(sm.subs, key)
	sm.mu.Unlock()

	e.cancel()
}

// wrapRedisEvent turns
//
//	{"version":1,"event":"bid","auction":"cars/car1","bid":{...}}
//
// into
//
//	{"event":"auctions/bid","body":{"version":1,"auction":"cars/car1","bid":{...}}}
func wrapRedisEvent(payload string) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, err
	}

	evt := "unknown"
	if v, ok := raw["event"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			evt = s
		}
	}
	delete(raw, "event")

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: "auctions/" + evt, Body: body})
}

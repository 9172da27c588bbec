package ws

import (
	"sync"

	"bidtobuy/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub keeps one room of client connections per auction.
type Hub struct {
	rooms sync.Map // models.AuctionKey -> *room
}

func NewHub() *Hub { return &Hub{} }

// Broadcast is called by the Redis subscriber. Connections that fail the write are dropped.
func (h *Hub) Broadcast(key models.AuctionKey, msg []byte) {
	v, ok := h.rooms.Load(key)
	if !ok {
		return
	}
	r := v.(*room)
	dropped, empty := r.broadcast(msg)
	if dropped > 0 {
		zap.L().Debug("ws_dropped_clients", zap.String("auction", key.String()), zap.Int("count", dropped))
	}
	if empty {
		h.rooms.CompareAndDelete(key, r)
	}
}

func (h *Hub) Join(key models.AuctionKey, c *clientConn) {
	for {
		r, _ := h.rooms.LoadOrStore(key, &room{conns: map[*clientConn]struct{}{}})
		if r.(*room).add(c) {
			return
		}
		// the room emptied and is being dropped; retry on a fresh one
		h.rooms.CompareAndDelete(key, r)
	}
}

// Leave drops c, and the room with it once it is empty.
func (h *Hub) Leave(key models.AuctionKey, c *clientConn) {
	v, ok := h.rooms.Load(key)
	if !ok {
		return
	}
	r := v.(*room)
	if r.remove(c) {
		h.rooms.CompareAndDelete(key, r)
	}
}


// Size reports the number of connections in an auction room.
func (h *Hub) Size(key models.AuctionKey) int {
	if v, ok := h.rooms.Load(key); ok {
		return v.(*room).size()
	}
	return 0
}

type room struct {
	mu     sync.RWMutex
	conns  map[*clientConn]struct{}
	closed bool // set when the last connection left; a closed room takes no joins
}

func (r *room) add(c *clientConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.conns[c] = struct{}{}
	return true
}

// remove reports whether the room is now empty and closed.
func (r *room) remove(c *clientConn) bool {
	r.mu.Lock()
	delete(r.conns, c)
	if len(r.conns) == 0 {
		r.closed = true
	}
	empty := r.closed
	r.mu.Unlock()
	_ = c.rawConn.Close()
	return empty
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// broadcast writes outside the lock and returns how many connections it removed and whether
// that emptied the room.
func (r *room) broadcast(msg []byte) (int, bool) {
	r.mu.RLock()
	conns := make([]*clientConn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	dropped, empty := 0, false
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			empty = r.remove(c)
			dropped++
		}
	}
	return dropped, empty
}

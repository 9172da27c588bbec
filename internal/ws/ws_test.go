package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/ledger/memledger"
	"bidtobuy/internal/listing"
	"bidtobuy/internal/models"
	"bidtobuy/internal/services/auction"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestWrapRedisEvent(t *testing.T) {
	out, err := wrapRedisEvent(`{"version":1,"event":"bid","auction":"cars/car1","bid":{"id":"b1","amount":11000}}`)
	require.NoError(t, err)
	require.JSONEq(t,
		`{"event":"auctions/bid","body":{"version":1,"auction":"cars/car1","bid":{"id":"b1","amount":11000}}}`,
		string(out))

	out, err = wrapRedisEvent(`{"version":1}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"auctions/unknown","body":{"version":1}}`, string(out))

	_, err = wrapRedisEvent(`not json`)
	require.Error(t, err)
}

func TestRouter_Dispatch(t *testing.T) {
	r := NewRouter()
	Register(r, "echo", func(_ context.Context, cc *ConnContext, req BidRequest) (BidRequest, error) {
		return BidRequest{Amount: req.Amount * 2}, nil
	})

	res, err := r.dispatch(context.Background(), &ConnContext{}, Envelope{Event: "echo", Body: json.RawMessage(`{"amount":2}`)})
	require.NoError(t, err)
	require.Equal(t, BidRequest{Amount: 4}, res)

	_, err = r.dispatch(context.Background(), &ConnContext{}, Envelope{Event: "echo", Body: json.RawMessage(`{"amount":"x"}`)})
	require.ErrorIs(t, err, biderrors.ErrInvalidBid)

	_, err = r.dispatch(context.Background(), &ConnContext{}, Envelope{Event: "nope"})
	require.ErrorIs(t, err, ErrUnknownEvent)

	require.Panics(t, func() {
		Register(r, "", func(context.Context, *ConnContext, BidRequest) (BidRequest, error) { return BidRequest{}, nil })
	})
}

func TestErrorBody(t *testing.T) {
	body := errorBody(biderrors.TooLow(12000))
	require.Equal(t, biderrors.CodeBidTooLow, body.Code)
	require.NotNil(t, body.CurrentHighest)
	require.Equal(t, 12000.0, *body.CurrentHighest)

	require.Empty(t, errorBody(ErrUnknownEvent).Code)
}

func roomCount(h *Hub) int {
	n := 0
	h.rooms.Range(func(any, any) bool { n++; return true })
	return n
}

func TestHub_JoinSkipsClosedRoom(t *testing.T) {
	h := NewHub()
	key := models.AuctionKey{Category: "cars", ItemID: "car1"}
	stale := &room{conns: map[*clientConn]struct{}{}, closed: true}
	h.rooms.Store(key, stale)

	h.Join(key, &clientConn{})

	v, ok := h.rooms.Load(key)
	require.True(t, ok)
	require.NotSame(t, stale, v.(*room))
	require.Equal(t, 1, h.Size(key))
	require.Equal(t, 1, roomCount(h))
}

type frame struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body"`
}

func TestWsServer_BidRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog := listing.NewMemoryCatalog(models.Listing{
		Category: "cars", ItemID: "car1", BasePrice: 10000,
		CreatedAt: time.Now().Add(-time.Hour), AuctionDuration: "7 days", OwnerUserID: "seller",
	})
	svc := auction.NewAuctionService(catalog, memledger.New(), nil, nil, auction.Options{BidStep: 1000})
	hub := NewHub()
	srv := NewWsServer(ctx, hub, nil, svc)

	engine := gin.New()
	engine.GET("/ws", srv.Handle)
	ts := httptest.NewServer(engine)
	defer ts.Close()

	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?category=cars&item_id=ghost&user_id=u1", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?category=cars&item_id=car1&user_id=u1", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, EventSnapshot, f.Event)
	var snap auction.ItemDetail
	require.NoError(t, json.Unmarshal(f.Body, &snap))
	require.Equal(t, 11000.0, snap.NextBidAmount)
	require.Equal(t, 1, hub.Size(models.AuctionKey{Category: "cars", ItemID: "car1"}))

	require.NoError(t, conn.WriteJSON(Envelope{Event: EventBid, Body: json.RawMessage(`{"amount":9000}`)}))
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, EventError, f.Event)
	var eb ErrorBody
	require.NoError(t, json.Unmarshal(f.Body, &eb))
	require.Equal(t, biderrors.CodeBidTooLow, eb.Code)
	require.Equal(t, 10000.0, *eb.CurrentHighest)

	require.NoError(t, conn.WriteJSON(Envelope{Event: EventBid, Body: json.RawMessage(`{"amount":11000}`)}))
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, EventBid+"-ack", f.Event)
	var res auction.BidResult
	require.NoError(t, json.Unmarshal(f.Body, &res))
	require.Equal(t, 11000.0, res.NewHighestBid)
	require.Equal(t, "u1", res.Bid.BidderUserID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return roomCount(hub) == 0 }, 5*time.Second, 20*time.Millisecond)
}

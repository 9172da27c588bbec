package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/models"
	"bidtobuy/internal/services/auction"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 12 * time.Second
	pingPeriod     = 3 * time.Second // must be < pongWait
	maxMessageSize = 512
	handlerTimeout = 1900 * time.Millisecond
)

type WsServer struct {
	ctx        context.Context
	hub        *Hub
	subMgr     *subscriptionManager
	router     *Router
	upgrader   websocket.Upgrader
	auctionSvc auction.IAuctionService
}

// NewWsServer wires the websocket rooms. Without a Redis client rooms only receive the replies
// to their own frames.
func NewWsServer(ctx context.Context, h *Hub, rdc *redis.Client, auctionSvc auction.IAuctionService) *WsServer {
	srv := &WsServer{
		ctx:    ctx,
		hub:    h,
		router: NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true }, // dev-only
		},
		auctionSvc: auctionSvc,
	}
	if rdc != nil {
		srv.subMgr = newSubscriptionManager(ctx, rdc, h)
	}
	srv.registerHandlers()
	return srv
}

// Handle is the gin entry point: /ws?category=&item_id=&user_id=
func (s *WsServer) Handle(ginCtx *gin.Context) {
	key := models.AuctionKey{Category: ginCtx.Query("category"), ItemID: ginCtx.Query("item_id")}
	userID := ginCtx.Query("user_id")
	if key.Category == "" || key.ItemID == "" || userID == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "category, item_id and user_id are required"})
		return
	}

	snap, err := s.auctionSvc.ItemDetail(ginCtx.Request.Context(), key)
	if errors.Is(err, biderrors.ErrNotFound) {
		ginCtx.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": biderrors.CodeNotFound})
		return
	}
	if err != nil {
		zap.L().Warn("ws_snapshot", zap.String("auction", key.String()), zap.Error(err))
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws_upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxMessageSize)
	_ = rawConn.SetReadDeadline(time.Now().Add(pongWait))
	rawConn.SetPongHandler(func(string) error {
		return rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	wsConn := &clientConn{rawConn: rawConn}
	s.hub.Join(key, wsConn)
	if s.subMgr != nil {
		s.subMgr.Subscribe(key)
	}

	if snap != nil {
		_ = wsConn.writeJSON(gin.H{"event": EventSnapshot, "body": snap})
	}

	done := make(chan struct{})
	go s.reader(key, userID, wsConn, done)
	go s.pinger(wsConn, done)
}

func (s *WsServer) registerHandlers() {
	Register(
		s.router,
		EventBid,
		func(ctx context.Context, cc *ConnContext, req BidRequest) (*auction.BidResult, error) {
			return s.auctionSvc.SubmitBid(ctx, cc.Key, cc.UserID, req.Amount)
		},
	)
}

func errorBody(err error) ErrorBody {
	body := ErrorBody{Error: err.Error(), Code: biderrors.Code(err)}
	if errors.Is(err, ErrUnknownEvent) {
		body.Code = ""
	}
	if cur, ok := biderrors.CurrentHighest(err); ok {
		body.CurrentHighest = &cur
	}
	return body
}

func (s *WsServer) reader(key models.AuctionKey, userID string, conn *clientConn, done chan struct{}) {
	defer func() {
		close(done)
		s.hub.Leave(key, conn)
		if s.subMgr != nil {
			s.subMgr.Unsubscribe(key)
		}
	}()

	cc := &ConnContext{Key: key, UserID: userID, Server: s}

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			return // client closed or errored
		}

		ctx, cancel := context.WithTimeout(s.ctx, handlerTimeout)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		if err != nil {
			_ = conn.writeJSON(map[string]any{
				"event": EventError,
				"body":  errorBody(err),
			})
			continue
		}

		reply := map[string]any{"event": env.Event + "-ack"}
		if res != nil {
			reply["body"] = res
		}
		_ = conn.writeJSON(reply)
	}
}

func (s *WsServer) pinger(conn *clientConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.ctx.Done():
			_ = conn.rawConn.Close()
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				_ = conn.rawConn.Close()
				return
			}
		}
	}
}

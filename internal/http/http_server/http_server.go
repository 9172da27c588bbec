package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"bidtobuy/internal/http/auctionhandler"
	"bidtobuy/internal/services/auction"
	"bidtobuy/internal/services/outcome"
	"bidtobuy/internal/ws"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type httpServer struct {
	listenPort     uint16
	srv            http.Server
	ln             net.Listener
	auctionService auction.IAuctionService
	outcomeService outcome.IOutcomeService
	wsSrv          *ws.WsServer
	ctx            context.Context
}

func NewHttpServer(ctx context.Context, listenPort uint16, wsSrv *ws.WsServer,
	auctionService auction.IAuctionService, outcomeService outcome.IOutcomeService) *httpServer {
	return &httpServer{
		listenPort:     listenPort,
		wsSrv:          wsSrv,
		auctionService: auctionService,
		outcomeService: outcomeService,
		ctx:            ctx,
	}
}

// Router builds the gin engine with every route of the service.
func (h *httpServer) Router() *gin.Engine {
	routerEngine := gin.New()
	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	routerEngine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	if h.wsSrv != nil {
		routerEngine.GET("/ws", h.wsSrv.Handle)
	}

	auctionhandler.New(h.auctionService, h.outcomeService).Register(routerEngine)
	return routerEngine
}

// Start serves until the server context is cancelled, then shuts down gracefully.
func (h *httpServer) Start() error {
	var err error
	h.ln, err = net.Listen("tcp", fmt.Sprintf(":%d", h.listenPort))
	if err != nil {
		return err
	}
	h.srv = http.Server{
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-h.ctx.Done()
		_ = h.Dispose()
	}()

	zap.L().Info("http_listening", zap.Uint16("port", h.listenPort))
	if err := h.srv.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose waits up to shutdownTimeout for in-flight requests to finish.
func (h *httpServer) Dispose() error {
	// the server context is already cancelled when this runs
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err
	}
	zap.L().Info("http_stopped")
	return nil
}

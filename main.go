package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"bidtobuy/internal/activity"
	"bidtobuy/internal/broadcast"
	"bidtobuy/internal/config"
	"bidtobuy/internal/database/db_client"
	"bidtobuy/internal/database/migrations"
	"bidtobuy/internal/http/http_server"
	"bidtobuy/internal/ledger"
	"bidtobuy/internal/ledger/memledger"
	"bidtobuy/internal/ledger/pgledger"
	"bidtobuy/internal/ledger/redisledger"
	"bidtobuy/internal/listing"
	"bidtobuy/internal/redis/redis_client"
	"bidtobuy/internal/redis/redis_functions"
	"bidtobuy/internal/redis/watcher/auctionwatcher"
	"bidtobuy/internal/services/auction"
	"bidtobuy/internal/services/outcome"
	"bidtobuy/internal/sweeper"
	"bidtobuy/internal/syncbid"
	"bidtobuy/internal/ws"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

//	@title			BidToBuy auction API
//	@version		1.0
//	@description	Bidding and auction lifecycle for catalog listings.
//	@BasePath		/
func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err := redis_client.NewRedisClient(cfg.RedisAuctionsHost, int(cfg.RedisAuctionsPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	// 4. Postgres + schema
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()
	if cfg.RunMigrations {
		if err := migrations.Up(pgDb, cfg.PostgresDb); err != nil {
			Log.Fatal("pg-migrate", zap.Error(err))
		}
	}

	// 5. Bid ledger
	bidLedger, err := newLedger(ctx, cfg, redisClient, pgDb)
	if err != nil {
		Log.Fatal("ledger", zap.String("backend", cfg.LedgerBackend), zap.Error(err))
	}
	Log.Info("ledger_ready", zap.String("backend", cfg.LedgerBackend))

	// 6. Services
	catalog := listing.NewPostgresCatalog(pgDb)
	auctionService := auction.NewAuctionService(
		catalog,
		bidLedger,
		broadcast.NewRedisPublisher(redisClient),
		activity.NewPostgresRecorder(pgDb),
		auction.Options{
			BidStep:          cfg.BidStep,
			EndingSoonWindow: cfg.EndingSoonWindow,
			ActivityLimit:    cfg.ActivityLimit,
		},
	)
	outcomeService := outcome.NewOutcomeService(catalog, bidLedger, nil)

	// 7. Background settlement: periodic sweep, plus close timers and the archive for Redis
	sweeper.Run(ctx, bidLedger, outcomeService, cfg.SweepInterval)
	if cfg.LedgerBackend == config.LedgerRedis {
		go auctionwatcher.Run(ctx, redisClient, outcomeService)
		syncbid.Run(ctx, redisClient, pgDb)
	}

	// 8. WebSockets hub + Redis fan-out
	wsSrv := ws.NewWsServer(ctx, ws.NewHub(), redisClient, auctionService)

	// 9. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, auctionService, outcomeService)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}

func newLedger(ctx context.Context, cfg *config.Config, rdc *redis.Client, db *sql.DB) (ledger.Ledger, error) {
	switch cfg.LedgerBackend {
	case config.LedgerPostgres:
		return pgledger.New(db), nil
	case config.LedgerMemory:
		return memledger.New(), nil
	default:
		if err := redis_functions.LoadAll(ctx, rdc); err != nil {
			return nil, err
		}
		return redisledger.New(rdc), nil
	}
}

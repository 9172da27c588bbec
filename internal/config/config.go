package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
	LedgerMemory   = "memory"
)

type Config struct {
	RedisAuctionsHost string `env:"REDIS_AUCTIONS_HOST" envDefault:"localhost"`
	RedisAuctionsPort uint16 `env:"REDIS_AUCTIONS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"bidtobuy_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"bidtobuy_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"bidtobuy_db"`
	RunMigrations    bool   `env:"RUN_MIGRATIONS"    envDefault:"true"`

	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"redis" validate:"oneof=redis postgres memory"`

	BidStep          float64       `env:"BID_STEP"           envDefault:"1000" validate:"min=0"`
	EndingSoonWindow time.Duration `env:"ENDING_SOON_WINDOW" envDefault:"24h"  validate:"gt=0"`
	ActivityLimit    int           `env:"ACTIVITY_LIMIT"     envDefault:"100"  validate:"min=1,max=1000"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL"     envDefault:"30s"  validate:"gt=0"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

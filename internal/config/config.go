package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	GatewayBaseURL       string `env:"GATEWAY_BASE_URL" envDefault:"http://mock-gateway:8081"`
	GatewayKeyID         string `env:"GATEWAY_KEY_ID,required"`
	GatewayKeySecret     string `env:"GATEWAY_KEY_SECRET,required"`
	GatewayWebhookSecret string `env:"GATEWAY_WEBHOOK_SECRET,required"`

	SettlementHoldDays      int    `env:"SETTLEMENT_HOLD_DAYS" envDefault:"7"`
	SettlementSweepSchedule string `env:"SETTLEMENT_SWEEP_SCHEDULE" envDefault:"*/15 * * * *"`
	SettlementSweepBatch    int    `env:"SETTLEMENT_SWEEP_BATCH" envDefault:"100"`
	MinWithdrawalAmount     int64  `env:"MIN_WITHDRAWAL_AMOUNT" envDefault:"10000"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

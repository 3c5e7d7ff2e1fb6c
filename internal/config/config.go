package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=16"`

	ChainRPCURL          string        `env:"CHAIN_RPC_URL,required" validate:"required,url"`
	EscrowOwnerKey       string        `env:"ESCROW_OWNER_KEY,required" validate:"required,hexadecimal"`
	EscrowContractBin    string        `env:"ESCROW_CONTRACT_BIN,required" validate:"required"`
	ChainConnectRetries  int           `env:"CHAIN_CONNECT_RETRIES" envDefault:"30" validate:"min=1"`
	ChainConnectInterval time.Duration `env:"CHAIN_CONNECT_INTERVAL" envDefault:"1s"`
	ChainCallTimeout     time.Duration `env:"CHAIN_CALL_TIMEOUT" envDefault:"10s"`
	ChainReceiptTimeout  time.Duration `env:"CHAIN_RECEIPT_TIMEOUT" envDefault:"90s"`

	CacheProvider         string        `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string        `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`
	CatalogCacheTTL       time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"30s"`
	CatalogSeed           string        `env:"CATALOG_SEED"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"60s"`

	OwnerEmail    string `env:"OWNER_EMAIL" envDefault:"onlymoney@gmail.com" validate:"required,email"`
	OwnerPassword string `env:"OWNER_PASSWORD" envDefault:"evenmoremoney" validate:"required,min=8"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	key := strings.TrimPrefix(strings.TrimSpace(c.EscrowOwnerKey), "0x")
	if len(key) != 64 {
		return fmt.Errorf("ESCROW_OWNER_KEY must be a 32-byte hex private key")
	}

	if c.ChainReceiptTimeout < c.ChainCallTimeout {
		return fmt.Errorf("CHAIN_RECEIPT_TIMEOUT must not be shorter than CHAIN_CALL_TIMEOUT")
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"order-service"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr    string `envconfig:"GRPC_ADDR" default:":9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Store is "sqlite" or "postgres".
	Store       string `envconfig:"STORE" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"orders.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Optional integrations; empty disables them.
	RedisAddr    string `envconfig:"REDIS_ADDR" default:""`
	RabbitMQURL  string `envconfig:"RABBITMQ_URL" default:""`
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:""`

	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	FeedLimit        int           `envconfig:"FEED_LIMIT" default:"100"`
	FeedPollInterval time.Duration `envconfig:"FEED_POLL_INTERVAL" default:"30s"`
	IdempotencyTTL   time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"48h"`

	PaperWidth   string `envconfig:"PAPER_WIDTH" default:"58mm"`
	ReceiptASCII bool   `envconfig:"RECEIPT_ASCII" default:"false"`
	AutoPrint    bool   `envconfig:"AUTO_PRINT" default:"true"`
	PrintDir     string `envconfig:"PRINT_DIR" default:""`
}

// Load reads envFiles (".env" when none are given) and then the environment.
// Variables already set in the environment win over the files. A missing
// default .env is not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("config: load %v: %w", envFiles, err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH is required for the sqlite store")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("config: POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown STORE %q", c.Store)
	}
	if c.FeedPollInterval < 0 {
		return errors.New("config: FEED_POLL_INTERVAL must not be negative")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

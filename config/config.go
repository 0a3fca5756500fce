// Package config reads the chat server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

type Config struct {
	Port       string `envconfig:"PORT" default:"5000" validate:"required,numeric"`
	BaseURL    string `envconfig:"BASE_URL"`
	WSProtocol string `envconfig:"WS_PROTOCOL" validate:"omitempty,oneof=ws wss"`

	HistoryBackend  string `envconfig:"HISTORY_BACKEND" default:"sqlite" validate:"oneof=sqlite redis badger"`
	ChatDBFile      string `envconfig:"CHAT_DB_FILE" default:"./chat.db" validate:"required_if=HistoryBackend sqlite"`
	RedisURL        string `envconfig:"REDIS_URL" validate:"required_if=HistoryBackend redis"`
	RedisHistoryKey string `envconfig:"REDIS_HISTORY_KEY" default:"chathub:history"`
	// empty BADGER_DIR keeps badger in memory
	BadgerDir     string `envconfig:"BADGER_DIR"`
	HistoryLimit  int    `envconfig:"HISTORY_LIMIT" default:"100" validate:"gt=0"`
	HistoryRetain int    `envconfig:"HISTORY_RETAIN" default:"1000" validate:"gtefield=HistoryLimit"`

	BroadcastBuffer    int           `envconfig:"BROADCAST_BUFFER" default:"100" validate:"gt=0"`
	MinMessageInterval time.Duration `envconfig:"MIN_MESSAGE_INTERVAL" default:"250ms" validate:"gt=0"`
	MaxFrameBytes      int64         `envconfig:"MAX_FRAME_BYTES" default:"65536" validate:"gte=1024"`
	HTTPRateLimit      uint          `envconfig:"HTTP_RATE_LIMIT" default:"150" validate:"gt=0"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
	StaticDir string `envconfig:"STATIC_DIR"`
	// TRUSTED_PROXIES lists proxy IPs/CIDRs whose X-Forwarded-For is
	// honoured by the HTTP limiter; empty trusts none
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES" validate:"dive,ip|cidr"`
}

var validate = validator.New()

// Load reads .env files (if any) into the environment, then builds and
// validates a Config from it. Variables already set win over .env values.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("error loading env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("error reading environment: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return ":" + c.Port
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BrokerRedis  = "redis"
	BrokerMemory = "memory"
)

type Config struct {
	AppEnv     string `env:"APP_ENV" default:"development"`
	Port       string `env:"PORT" default:"8080"`
	AppURL     string `env:"APP_URL" default:"http://localhost:8080"`
	InstanceID string `env:"INSTANCE_ID"`
	LogLevel   string `env:"LOG_LEVEL" default:"info"`
	LogFormat  string `env:"LOG_FORMAT" default:"text"`

	Broker           string `env:"BROKER" default:"redis"`
	RedisURL         string `env:"REDIS_URL"`
	MembershipKey    string `env:"MEMBERSHIP_KEY" default:"active_connections_global"`
	BroadcastChannel string `env:"BROADCAST_CHANNEL" default:"ws_channel"`

	// DrainTimeout bounds the whole drain. Units are explicit (e.g. "10s", "2m").
	DrainTimeout      time.Duration `env:"DRAIN_TIMEOUT" default:"10s"`
	DrainPollInterval time.Duration `env:"DRAIN_POLL_INTERVAL" default:"10s"`
	SendTimeout       time.Duration `env:"SEND_TIMEOUT" default:"1s"`

	// NotificationInterval of 0 disables the periodic notification task.
	NotificationInterval time.Duration `env:"NOTIFICATION_INTERVAL" default:"10s"`
	NotificationText     string        `env:"NOTIFICATION_TEXT" default:"Test notification"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	WebSocketRateLimit      float64 `env:"WS_RATE_LIMIT" default:"10"`
	WebSocketRateBurst      int     `env:"WS_RATE_BURST" default:"20"`
}

// longDrainThreshold is where a drain timeout starts to look like a unit mistake.
const longDrainThreshold = 10 * time.Minute

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.DrainTimeout >= longDrainThreshold {
		slog.Warn("DRAIN_TIMEOUT is unusually long, check its unit", "drain_timeout", cfg.DrainTimeout)
	}

	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func validate(cfg *Config) error {
	switch cfg.Broker {
	case BrokerRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when BROKER=redis")
		}
	case BrokerMemory:
	default:
		return fmt.Errorf("BROKER must be %q or %q, got %q", BrokerRedis, BrokerMemory, cfg.Broker)
	}

	durations := map[string]time.Duration{
		"DRAIN_TIMEOUT":       cfg.DrainTimeout,
		"DRAIN_POLL_INTERVAL": cfg.DrainPollInterval,
		"SEND_TIMEOUT":        cfg.SendTimeout,
	}
	for name, value := range durations {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, value)
		}
	}

	if cfg.NotificationInterval < 0 {
		return fmt.Errorf("NOTIFICATION_INTERVAL must not be negative, got %s", cfg.NotificationInterval)
	}
	if cfg.MembershipKey == "" {
		return errors.New("MEMBERSHIP_KEY must not be empty")
	}
	if cfg.BroadcastChannel == "" {
		return errors.New("BROADCAST_CHANNEL must not be empty")
	}
	if cfg.MaxWebSocketConnections < 1 {
		return fmt.Errorf("MAX_WEBSOCKET_CONNECTIONS must be at least 1, got %d", cfg.MaxWebSocketConnections)
	}
	if cfg.WebSocketRateLimit <= 0 || cfg.WebSocketRateBurst < 1 {
		return errors.New("WS_RATE_LIMIT must be positive and WS_RATE_BURST at least 1")
	}

	return nil
}

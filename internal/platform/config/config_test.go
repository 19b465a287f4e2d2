package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BROKER", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
}

func TestLoad_AllRequiredVarsSet(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Broker)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "active_connections_global", cfg.MembershipKey)
	assert.Equal(t, "ws_channel", cfg.BroadcastChannel)
	assert.Equal(t, 10*time.Second, cfg.DrainTimeout)
	assert.Equal(t, 10*time.Second, cfg.DrainPollInterval)
	assert.Equal(t, 1*time.Second, cfg.SendTimeout)
	assert.Equal(t, 10*time.Second, cfg.NotificationInterval)
	assert.Equal(t, "Test notification", cfg.NotificationText)
	assert.Equal(t, 10000, cfg.MaxWebSocketConnections)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_DrainTimeoutUnitIsExplicit(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DRAIN_TIMEOUT", "10m")
	t.Setenv("DRAIN_POLL_INTERVAL", "500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.DrainTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.DrainPollInterval)
}

func TestLoad_MemoryBrokerNeedsNoRedis(t *testing.T) {
	t.Setenv("BROKER", "memory")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BrokerMemory, cfg.Broker)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"missing REDIS_URL", "REDIS_URL", "", "REDIS_URL is required when BROKER=redis"},
		{"unknown broker", "BROKER", "kafka", `BROKER must be "redis" or "memory", got "kafka"`},
		{"zero drain timeout", "DRAIN_TIMEOUT", "0s", "DRAIN_TIMEOUT must be positive, got 0s"},
		{"negative send timeout", "SEND_TIMEOUT", "-1s", "SEND_TIMEOUT must be positive, got -1s"},
		{"negative notification interval", "NOTIFICATION_INTERVAL", "-5s", "NOTIFICATION_INTERVAL must not be negative, got -5s"},
		{"no connections allowed", "MAX_WEBSOCKET_CONNECTIONS", "0", "MAX_WEBSOCKET_CONNECTIONS must be at least 1, got 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_NotificationsCanBeDisabled(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NOTIFICATION_INTERVAL", "0s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.NotificationInterval)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig("exchange-engine")

	assert.Equal(t, "exchange-engine", cfg.ServiceName)
	assert.Equal(t, TransportKafka, cfg.Transport)
	assert.Equal(t, "exchange.commands", cfg.CommandStream)
	assert.Equal(t, "exchange.replies", cfg.ReplyStream)
	assert.Equal(t, 5*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 200000.0, cfg.InitialUSDBalance)
	assert.Equal(t, 0.005, cfg.MaintenanceMarginRatio)
	assert.False(t, cfg.FloorNegativeEquity)
	require.NoError(t, cfg.Validate())

	offset, err := cfg.StartOffset()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), offset)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TRANSPORT", "Pebble")
	t.Setenv("REPLY_TIMEOUT_MS", "250")
	t.Setenv("FLOOR_NEGATIVE_EQUITY", "true")
	t.Setenv("START_CURSOR", "41")
	t.Setenv("KAFKA_BROKERS", " a:9092, b:9092 ,")

	cfg := LoadConfig("exchange-engine")

	assert.Equal(t, TransportPebble, cfg.Transport)
	assert.Equal(t, 250*time.Millisecond, cfg.ReplyTimeout)
	assert.True(t, cfg.FloorNegativeEquity)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers())

	offset, err := cfg.StartOffset()
	require.NoError(t, err)
	assert.Equal(t, int64(41), offset)
}

func TestValidate_Rejects(t *testing.T) {
	base := func() *Config { return LoadConfig("exchange-engine") }

	cfg := base()
	cfg.Transport = "redis"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.ReplyStream = cfg.CommandStream
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.StartCursor = "latest"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.MaxLeverage = 0
	assert.Error(t, cfg.Validate())
}

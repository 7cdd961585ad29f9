package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// writeTempConfig writes content to a temporary YAML file and returns its path
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())

	return tmpFile.Name()
}

// TestLoadConfig_Defaults tests loading configuration with default values
func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")

	require.NoError(t, err)
	require.NotNil(t, config)

	// Verify server defaults
	assert.Equal(t, 8082, config.Server.Port)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, config.Server.WriteTimeout)

	// Verify bets API defaults
	assert.Equal(t, "http://localhost:8080/api/v1/bets", config.Query.BaseURL)
	assert.Equal(t, 10*time.Second, config.Query.Timeout)

	// Verify sync defaults
	assert.Equal(t, 20, config.Sync.DefaultPageSize)
	assert.Equal(t, 30*time.Second, config.Sync.DefaultTTL)
	assert.Empty(t, config.Sync.Tabs)

	// Verify realtime defaults
	assert.Equal(t, BackendRedis, config.Realtime.Backend)
	assert.Equal(t, "fixture:", config.Realtime.TopicPrefix)
	assert.Equal(t, "standings:", config.Realtime.StandingsPrefix)
	assert.Equal(t, 5*time.Second, config.Realtime.SubscribeTimeout)

	// Verify Redis defaults
	assert.Equal(t, "localhost:6379", config.Redis.Addr)
	assert.Equal(t, "", config.Redis.Password)
	assert.Equal(t, 0, config.Redis.DB)
	assert.Equal(t, "live:", config.Redis.KeyPrefix)
	assert.Equal(t, 6*time.Hour, config.Redis.SnapshotTTL)

	// Verify Kafka defaults
	assert.True(t, config.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, config.Kafka.Brokers)
	assert.Equal(t, "live_snapshots", config.Kafka.Topic)
	assert.Equal(t, "bet-sync", config.Kafka.GroupID)

	// Verify logging defaults
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
}

// TestLoadConfig_WithFile tests loading configuration from file
func TestLoadConfig_WithFile(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
  read_timeout: 45s
  write_timeout: 45s

query:
  base_url: http://bets-api:8080/api/v1/bets
  timeout: 3s

sync:
  default_page_size: 25
  default_ttl: 1m
  tabs:
    results:
      page_size: 50
      ttl: 5m
    live:
      ttl: 10s

realtime:
  backend: memory
  topic_prefix: "match:"
  standings_prefix: "table:"
  subscribe_timeout: 2s

redis:
  addr: redis:6379
  password: test_password
  db: 1
  key_prefix: "test:"
  snapshot_ttl: 1h

kafka:
  enabled: false
  brokers:
    - broker1:9092
    - broker2:9092
  topic: test_topic
  group_id: test_group

logging:
  level: debug
  format: console
`)

	config, err := LoadConfig(path)

	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 45*time.Second, config.Server.ReadTimeout)

	assert.Equal(t, "http://bets-api:8080/api/v1/bets", config.Query.BaseURL)
	assert.Equal(t, 3*time.Second, config.Query.Timeout)

	assert.Equal(t, 25, config.Sync.DefaultPageSize)
	assert.Equal(t, time.Minute, config.Sync.DefaultTTL)
	require.Len(t, config.Sync.Tabs, 2)
	assert.Equal(t, 50, config.Sync.Tabs["results"].PageSize)
	assert.Equal(t, 5*time.Minute, config.Sync.Tabs["results"].TTL)
	assert.Equal(t, 10*time.Second, config.Sync.Tabs["live"].TTL)

	assert.Equal(t, BackendMemory, config.Realtime.Backend)
	assert.Equal(t, "match:", config.Realtime.TopicPrefix)
	assert.Equal(t, "table:", config.Realtime.StandingsPrefix)
	assert.Equal(t, 2*time.Second, config.Realtime.SubscribeTimeout)

	assert.Equal(t, "redis:6379", config.Redis.Addr)
	assert.Equal(t, "test_password", config.Redis.Password)
	assert.Equal(t, 1, config.Redis.DB)
	assert.Equal(t, "test:", config.Redis.KeyPrefix)
	assert.Equal(t, time.Hour, config.Redis.SnapshotTTL)

	assert.False(t, config.Kafka.Enabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, config.Kafka.Brokers)
	assert.Equal(t, "test_topic", config.Kafka.Topic)
	assert.Equal(t, "test_group", config.Kafka.GroupID)

	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "console", config.Logging.Format)
}

// TestLoadConfig_InvalidFile tests loading with non-existent file
func TestLoadConfig_InvalidFile(t *testing.T) {
	config, err := LoadConfig("/nonexistent/config.yaml")

	assert.Error(t, err)
	assert.Nil(t, config)
}

// TestLoadConfig_MalformedFile tests loading with malformed YAML
func TestLoadConfig_MalformedFile(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: invalid_port
  read_timeout: not_a_duration
`)

	config, err := LoadConfig(path)

	assert.Error(t, err)
	assert.Nil(t, config)
}

// TestLoadConfig_PartialFile tests loading with partial configuration
func TestLoadConfig_PartialFile(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090

sync:
  tabs:
    open:
      page_size: 10
`)

	config, err := LoadConfig(path)

	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 10, config.Sync.Tabs["open"].PageSize)

	// Defaults still apply to everything else
	assert.Equal(t, 20, config.Sync.DefaultPageSize)
	assert.Equal(t, "live_snapshots", config.Kafka.Topic)
	assert.Equal(t, "localhost:6379", config.Redis.Addr)
}

// TestLoadConfig_EnvironmentVariables tests environment variable overrides
func TestLoadConfig_EnvironmentVariables(t *testing.T) {
	t.Setenv("BET_SYNC_SERVER_PORT", "7777")
	t.Setenv("BET_SYNC_REDIS_ADDR", "env-redis:6379")
	t.Setenv("BET_SYNC_REALTIME_BACKEND", "memory")
	t.Setenv("BET_SYNC_SYNC_DEFAULT_PAGE_SIZE", "40")

	config, err := LoadConfig("")

	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, 7777, config.Server.Port)
	assert.Equal(t, "env-redis:6379", config.Redis.Addr)
	assert.Equal(t, BackendMemory, config.Realtime.Backend)
	assert.Equal(t, 40, config.Sync.DefaultPageSize)
}

// TestLoadConfig_ValidationErrors tests that unusable settings are rejected
func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "Zero page size",
			content: `
sync:
  default_page_size: 0
`,
		},
		{
			name: "Negative tab page size",
			content: `
sync:
  tabs:
    open:
      page_size: -5
`,
		},
		{
			name: "Unknown backend",
			content: `
realtime:
  backend: carrier_pigeon
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig(writeTempConfig(t, tt.content))

			assert.Error(t, err)
			assert.Nil(t, config)
		})
	}
}

// TestSyncConfig_PageSizes tests that only positive tab overrides are returned
func TestSyncConfig_PageSizes(t *testing.T) {
	cfg := SyncConfig{
		DefaultPageSize: 20,
		Tabs: map[string]TabConfig{
			"open":    {PageSize: 10},
			"results": {PageSize: 50, TTL: time.Minute},
			"live":    {TTL: 5 * time.Second},
		},
	}

	assert.Equal(t, map[string]int{"open": 10, "results": 50}, cfg.PageSizes())
}

// TestSyncConfig_TTLFor tests per-tab TTL resolution
func TestSyncConfig_TTLFor(t *testing.T) {
	cfg := SyncConfig{
		DefaultTTL: 30 * time.Second,
		Tabs: map[string]TabConfig{
			"live":    {TTL: 5 * time.Second},
			"results": {PageSize: 50},
		},
	}

	tests := []struct {
		name string
		key  models.CacheKey
		want time.Duration
	}{
		{name: "Tab override", key: models.NewCacheKey("live"), want: 5 * time.Second},
		{name: "Override applies to sub-tabs", key: models.NewCacheKey("live", "football"), want: 5 * time.Second},
		{name: "Tab without TTL", key: models.NewCacheKey("results"), want: 30 * time.Second},
		{name: "Unknown tab", key: models.NewCacheKey("open"), want: 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.TTLFor(tt.key))
		})
	}
}

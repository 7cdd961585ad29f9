package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cypherlabdev/bet-sync-service/internal/models"
)

// Realtime backends
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all configuration for bet-sync-service
type Config struct {
	Server   ServerConfig
	Query    QueryConfig
	Sync     SyncConfig
	Realtime RealtimeConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// QueryConfig holds bets API configuration
type QueryConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration
}

// SyncConfig holds page size and staleness settings, with per-tab overrides
type SyncConfig struct {
	DefaultPageSize int                  `mapstructure:"default_page_size"`
	DefaultTTL      time.Duration        `mapstructure:"default_ttl"`
	Tabs            map[string]TabConfig
}

// TabConfig overrides sync settings for one tab
type TabConfig struct {
	PageSize int           `mapstructure:"page_size"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RealtimeConfig holds live feed configuration
type RealtimeConfig struct {
	// redis or memory
	Backend          string
	TopicPrefix      string        `mapstructure:"topic_prefix"`
	StandingsPrefix  string        `mapstructure:"standings_prefix"`
	SubscribeTimeout time.Duration `mapstructure:"subscribe_timeout"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string        `mapstructure:"key_prefix"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	// Topic to consume from (live_snapshots)
	Topic   string
	GroupID string `mapstructure:"group_id"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("query.base_url", "http://localhost:8080/api/v1/bets")
	v.SetDefault("query.timeout", 10*time.Second)

	v.SetDefault("sync.default_page_size", 20)
	v.SetDefault("sync.default_ttl", 30*time.Second)

	v.SetDefault("realtime.backend", BackendRedis)
	v.SetDefault("realtime.topic_prefix", "fixture:")
	v.SetDefault("realtime.standings_prefix", "standings:")
	v.SetDefault("realtime.subscribe_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "live:")
	v.SetDefault("redis.snapshot_ttl", 6*time.Hour)

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "live_snapshots")
	v.SetDefault("kafka.group_id", "bet-sync")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvPrefix("BET_SYNC")
	v.AutomaticEnv()
	// Replace . with _ for environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Unmarshal to struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the sync layer cannot run with
func (c *Config) Validate() error {
	if c.Sync.DefaultPageSize <= 0 {
		return fmt.Errorf("sync.default_page_size must be positive, got %d", c.Sync.DefaultPageSize)
	}
	for tab, tc := range c.Sync.Tabs {
		if tc.PageSize < 0 {
			return fmt.Errorf("sync.tabs.%s.page_size must not be negative, got %d", tab, tc.PageSize)
		}
	}
	switch c.Realtime.Backend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown realtime backend %q", c.Realtime.Backend)
	}
	return nil
}

// PageSizes returns the per-tab page size overrides
func (c *SyncConfig) PageSizes() map[string]int {
	sizes := make(map[string]int, len(c.Tabs))
	for tab, tc := range c.Tabs {
		if tc.PageSize > 0 {
			sizes[tab] = tc.PageSize
		}
	}
	return sizes
}

// TTLFor returns how long the first page of key stays fresh
func (c *SyncConfig) TTLFor(key models.CacheKey) time.Duration {
	if tc, ok := c.Tabs[key.Tab]; ok && tc.TTL > 0 {
		return tc.TTL
	}
	return c.DefaultTTL
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	// CommandPrefix is the chat prefix all commands live under.
	CommandPrefix string `json:"command_prefix"`
	// TopCount is how many players a leaderboard shows.
	TopCount int `json:"top_count"`
	// UpdateInterval is the automatic scan period in seconds.
	UpdateInterval int `json:"update_interval"`
	// Debug enables the debug command and verbose diagnostics.
	Debug bool `json:"debug"`

	// ServerDir is the game server's root directory, the base for the
	// stats directories, usercache.json and whitelist.json.
	ServerDir string `json:"server_dir"`
	// DataFile is where the snapshot is persisted.
	DataFile string `json:"data_file"`

	Server ServerConfig `json:"server"`
	Redis  RedisConfig  `json:"redis"`
	Kafka  KafkaConfig  `json:"kafka"`
}

// ServerConfig holds HTTP server configuration. Timeouts are in seconds.
type ServerConfig struct {
	Port         int `json:"port"`
	ReadTimeout  int `json:"read_timeout"`
	WriteTimeout int `json:"write_timeout"`
	IdleTimeout  int `json:"idle_timeout"`
}

// RedisConfig holds the optional leaderboard mirror configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// KafkaConfig holds the optional scan-delta publisher configuration
type KafkaConfig struct {
	Enabled       bool     `json:"enabled"`
	Brokers       []string `json:"brokers"`
	Topic         string   `json:"topic"`
	RetryAttempts int      `json:"retry_attempts"`
}

// Load reads configuration from a JSON file. A missing file is created
// with defaults so operators have something to edit after first startup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Save writes the configuration back to disk with stable formatting.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.CommandPrefix == "" {
		c.CommandPrefix = "!!pls"
	}
	if c.TopCount <= 0 {
		c.TopCount = 10
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = 300
	}
	if c.ServerDir == "" {
		c.ServerDir = "."
	}
	if c.DataFile == "" {
		c.DataFile = filepath.Join("config", "blockstats_data.json")
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "blockstats-deltas"
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
}

// DefaultConfig returns a configuration with all defaults. Debug starts
// enabled, matching the documented first-run behavior.
func DefaultConfig() *Config {
	cfg := &Config{Debug: true}
	cfg.applyDefaults()
	return cfg
}

// Interval returns the scan period as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Second
}

// StatsDirs returns the candidate per-player record directories in
// priority order. Only the first usable one is scanned.
func (c *Config) StatsDirs() []string {
	return []string{
		filepath.Join(c.ServerDir, "world", "stats"),
		filepath.Join(c.ServerDir, "stats"),
	}
}

// UsercachePath returns the identifier-to-name directory file.
func (c *Config) UsercachePath() string {
	return filepath.Join(c.ServerDir, "usercache.json")
}

// WhitelistPath returns the allow-list source file.
func (c *Config) WhitelistPath() string {
	return filepath.Join(c.ServerDir, "whitelist.json")
}

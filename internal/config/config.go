package config

import (
	"fmt"
	"slices"
	"time"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Config holds server configuration values.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	LogLevel   string           `mapstructure:"log_level" yaml:"log_level"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Hub        HubConfig        `mapstructure:"hub" yaml:"hub"`
	Moderation ModerationConfig `mapstructure:"moderation" yaml:"moderation"`
}

// ServerConfig configures the HTTP and WebSocket listener.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// AllowedOrigins is checked against the Origin header of WebSocket upgrades and
	// CORS requests. "*" admits every origin.
	AllowedOrigins     []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MaxMessageBytes    int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver           string        `mapstructure:"driver" yaml:"driver"`
	SQLitePath       string        `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MongoURI         string        `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase    string        `mapstructure:"mongo_database" yaml:"mongo_database"`
	MongoMinPoolSize uint64        `mapstructure:"mongo_min_pool_size" yaml:"mongo_min_pool_size"`
	MongoMaxPoolSize uint64        `mapstructure:"mongo_max_pool_size" yaml:"mongo_max_pool_size"`
	PostgresDSN      string        `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// HubConfig tunes session behaviour.
type HubConfig struct {
	ClientBuffer          int  `mapstructure:"client_buffer" yaml:"client_buffer"`
	RequireBoundSender    bool `mapstructure:"require_bound_sender" yaml:"require_bound_sender"`
	EvictReplacedSessions bool `mapstructure:"evict_replaced_sessions" yaml:"evict_replaced_sessions"`
	ReportErrors          bool `mapstructure:"report_errors" yaml:"report_errors"`
}

// ModerationConfig lists words masked in chat bodies. An empty list disables it.
type ModerationConfig struct {
	CensoredWords []string `mapstructure:"censored_words" yaml:"censored_words"`
	Replacement   string   `mapstructure:"replacement" yaml:"replacement"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":5001",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5001",
			},
			MaxMessageBytes:    64 * 1024,
			RateLimitPerMinute: 120,
		},
		LogLevel: "info",
		Store: StoreConfig{
			Driver:           DriverSQLite,
			SQLitePath:       "alumnichat.db",
			MongoDatabase:    "alumnichat",
			MongoMaxPoolSize: 100,
			OperationTimeout: 5 * time.Second,
		},
		Hub: HubConfig{
			ClientBuffer: 32,
		},
		Moderation: ModerationConfig{
			Replacement: "*",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the fields exposed as command line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxMessageBytes < 0 {
		return fmt.Errorf("server.max_message_bytes must not be negative")
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server.rate_limit_per_minute must not be negative")
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for driver %q", c.Store.Driver)
		}
	case DriverMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return fmt.Errorf("store.mongo_uri and store.mongo_database are required for driver %q", c.Store.Driver)
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	return nil
}

// OriginAllowed reports whether origin passes the allow-list. An empty origin comes
// from a non-browser client and is always admitted.
func (s ServerConfig) OriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	return slices.Contains(s.AllowedOrigins, "*") || slices.Contains(s.AllowedOrigins, origin)
}

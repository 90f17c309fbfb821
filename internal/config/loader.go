package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "ALUMNICHAT"
	envConfigDefaultPath = "ALUMNICHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load resolves the configuration and the file it came from. Later sources win:
// Default(), the YAML file, ALUMNICHAT_* env vars. Flag overrides are applied by the
// caller through UpdateFrom.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()
	path := resolveConfigPath(explicitPath)

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := readOrCreate(v, logger, path, cfg); err != nil {
		return cfg, path, err
	}
	// Decode into a zero value: mapstructure merges into existing slices, which
	// would keep default origins next to the configured ones.
	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return cfg, path, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return out, path, nil
}

// readOrCreate reads the config file, seeding it from defaults on first start.
// A file that cannot be written is not fatal; defaults and env still apply.
func readOrCreate(v *viper.Viper, logger *zerolog.Logger, path string, defaults Config) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := writeDefaultConfig(path, defaults); err != nil {
		warn(logger, err, path, "default config not written")
		return nil
	}
	if logger != nil {
		logger.Info().Str("path", path).Msg("wrote default config")
	}
	if err := v.ReadInConfig(); err != nil {
		warn(logger, err, path, "default config unreadable")
	}
	return nil
}

func warn(logger *zerolog.Logger, err error, path, msg string) {
	if logger == nil {
		return
	}
	logger.Warn().Err(err).Str("path", path).Msg(msg)
}

// setDefaults registers every key so AutomaticEnv can resolve ALUMNICHAT_* overrides
// for nested fields too.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_header_timeout", cfg.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("server.max_message_bytes", cfg.Server.MaxMessageBytes)
	v.SetDefault("server.rate_limit_per_minute", cfg.Server.RateLimitPerMinute)

	v.SetDefault("log_level", cfg.LogLevel)

	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.sqlite_path", cfg.Store.SQLitePath)
	v.SetDefault("store.mongo_uri", cfg.Store.MongoURI)
	v.SetDefault("store.mongo_database", cfg.Store.MongoDatabase)
	v.SetDefault("store.mongo_min_pool_size", cfg.Store.MongoMinPoolSize)
	v.SetDefault("store.mongo_max_pool_size", cfg.Store.MongoMaxPoolSize)
	v.SetDefault("store.postgres_dsn", cfg.Store.PostgresDSN)
	v.SetDefault("store.operation_timeout", cfg.Store.OperationTimeout)

	v.SetDefault("hub.client_buffer", cfg.Hub.ClientBuffer)
	v.SetDefault("hub.require_bound_sender", cfg.Hub.RequireBoundSender)
	v.SetDefault("hub.evict_replaced_sessions", cfg.Hub.EvictReplacedSessions)
	v.SetDefault("hub.report_errors", cfg.Hub.ReportErrors)

	v.SetDefault("moderation.censored_words", cfg.Moderation.CensoredWords)
	v.SetDefault("moderation.replacement", cfg.Moderation.Replacement)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

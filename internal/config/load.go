package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const envPrefix = "KASHFLOW"

// LoadConfig reads the YAML file at path, overlays KASHFLOW_* environment
// variables (a local .env file is honoured) and validates the result.
// A missing file is not an error; defaults and environment apply.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("local_storage.type", "sqlite")
	v.SetDefault("local_storage.file_path", "kashflow-local.db")
	v.SetDefault("local_storage.redis.addr", "localhost:6379")
	v.SetDefault("local_storage.redis.key_prefix", "kashflow:")

	v.SetDefault("state_storage.type", "sqlite")
	v.SetDefault("state_storage.file_path", "kashflow-state.db")

	v.SetDefault("remote.base_url", "http://localhost:8000")
	v.SetDefault("remote.auth_token", "")
	v.SetDefault("remote.timeout", "15s")
	v.SetDefault("remote.requests_per_second", 10.0)
	v.SetDefault("remote.burst", 5)

	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.max_attempts", 0)
	v.SetDefault("sync.refresh_cache_after_sync", true)
	v.SetDefault("sync.temp_id_prefix", "temp-")
	v.SetDefault("sync.refresh_page_size", 500)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "@every 5m")

	v.SetDefault("connectivity.probe_enabled", true)
	v.SetDefault("connectivity.probe_interval", "10s")
	v.SetDefault("connectivity.probe_path", "/health")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.LocalStorage.Type {
	case "sqlite":
		if c.LocalStorage.FilePath == "" {
			return errors.New("local_storage.file_path is required for sqlite")
		}
	case "mysql", "redis", "memory":
	default:
		return fmt.Errorf("unsupported local_storage.type %q", c.LocalStorage.Type)
	}

	switch c.StateStorage.Type {
	case "sqlite":
		if c.StateStorage.FilePath == "" {
			return errors.New("state_storage.file_path is required for sqlite")
		}
	case "mysql":
	default:
		return fmt.Errorf("unsupported state_storage.type %q", c.StateStorage.Type)
	}

	if c.Remote.BaseURL == "" {
		return errors.New("remote.base_url is required")
	}
	if _, err := time.ParseDuration(c.Remote.Timeout); err != nil {
		return fmt.Errorf("invalid remote.timeout: %w", err)
	}
	if c.Sync.Workers < 1 {
		return errors.New("sync.workers must be at least 1")
	}
	if c.Sync.MaxAttempts < 0 {
		return errors.New("sync.max_attempts must not be negative")
	}
	if c.Sync.TempIDPrefix == "" {
		return errors.New("sync.temp_id_prefix is required")
	}
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Interval); err != nil {
			return fmt.Errorf("invalid scheduler.interval: %w", err)
		}
	}
	if c.Connectivity.ProbeEnabled && c.Connectivity.GetProbeInterval() <= 0 {
		return errors.New("connectivity.probe_interval must be a positive duration")
	}
	return nil
}

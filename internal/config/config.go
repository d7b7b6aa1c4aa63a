package config

import (
	"time"
)

type Config struct {
	LocalStorage LocalStorage       `mapstructure:"local_storage"`
	StateStorage StateStorage       `mapstructure:"state_storage"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type DatabaseConnection struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// LocalStorage selects the backend for the device-local key-value store
// holding the offline queues, identifier map and product cache.
type LocalStorage struct {
	Type     string             `mapstructure:"type"` // sqlite, mysql, redis, memory
	FilePath string             `mapstructure:"file_path"`
	MySQL    DatabaseConnection `mapstructure:"mysql"`
	Redis    RedisConfig        `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type StateStorage struct {
	Type     string `mapstructure:"type"` // sqlite, mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	FilePath string `mapstructure:"file_path"` // For SQLite
}

func (s StateStorage) Connection() DatabaseConnection {
	return DatabaseConnection{
		Host:     s.Host,
		Port:     s.Port,
		User:     s.User,
		Password: s.Password,
		Database: s.Database,
	}
}

type RemoteConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	AuthToken         string  `mapstructure:"auth_token"`
	Timeout           string  `mapstructure:"timeout"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

func (r RemoteConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(r.Timeout)
	return d
}

type SyncConfig struct {
	Workers               int    `mapstructure:"workers"`
	MaxAttempts           int    `mapstructure:"max_attempts"` // 0 retries forever
	RefreshCacheAfterSync bool   `mapstructure:"refresh_cache_after_sync"`
	TempIDPrefix          string `mapstructure:"temp_id_prefix"`
	RefreshPageSize       int    `mapstructure:"refresh_page_size"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ConnectivityConfig struct {
	ProbeEnabled  bool   `mapstructure:"probe_enabled"`
	ProbeInterval string `mapstructure:"probe_interval"`
	ProbePath     string `mapstructure:"probe_path"`
}

func (c ConnectivityConfig) GetProbeInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProbeInterval)
	return d
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	JWTSecret    string   `mapstructure:"jwt_secret"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/bannerdesk/banner-service/internal/alerts"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/importer"
	"github.com/bannerdesk/banner-service/internal/middleware"
	"github.com/bannerdesk/banner-service/internal/storage"
	"github.com/bannerdesk/banner-service/internal/telemetry"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig                 `mapstructure:"server"`
	Database  DatabaseConfig               `mapstructure:"database"`
	RateLimit middleware.RateLimiterConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig                `mapstructure:"storage"`
	Logging   LoggingConfig                `mapstructure:"logging"`
	Alerts    AlertsConfig                 `mapstructure:"alerts"`
	Import    importer.Options             `mapstructure:"import"`
	Auth      AuthConfig                   `mapstructure:"auth"`
	Policy    PolicyConfig                 `mapstructure:"policy"`
	Telemetry telemetry.Config             `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the store. The memory driver persists snapshots
// to the file storage under SnapshotKey; an empty key keeps it volatile.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	SnapshotKey     string        `mapstructure:"snapshot_key"`
}

// Pool returns the postgres pool settings.
func (d DatabaseConfig) Pool() database.PoolConfig {
	return database.PoolConfig{
		URL:             d.URL,
		MaxConnections:  d.MaxConnections,
		MinConnections:  d.MinConnections,
		MaxConnLifetime: d.MaxConnLifetime,
		MaxConnIdleTime: d.MaxConnIdleTime,
	}
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string           `mapstructure:"type"`
	BasePath string           `mapstructure:"base_path"`
	S3       storage.S3Config `mapstructure:"s3"`
}

// Options returns the storage backend options.
func (s StorageConfig) Options() storage.Options {
	return storage.Options{Type: storage.StorageType(s.Type), BasePath: s.BasePath, S3: s.S3}
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
	// File, when set, receives a rotated copy of the server log.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type AlertsConfig struct {
	WarningDays   int    `mapstructure:"warning_days"`
	AttentionDays int    `mapstructure:"attention_days"`
	Timezone      string `mapstructure:"timezone"`
}

func (a AlertsConfig) Thresholds() alerts.Thresholds {
	return alerts.Thresholds{WarningDays: a.WarningDays, AttentionDays: a.AttentionDays}
}

// Location loads the timezone deadlines are evaluated in.
func (a AlertsConfig) Location() (*time.Location, error) {
	return time.LoadLocation(a.Timezone)
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	AccessTTL time.Duration `mapstructure:"access_ttl"`
	// RedisURL stores revoked tokens in redis. Empty keeps them in memory.
	RedisURL string `mapstructure:"redis_url"`
}

type PolicyConfig struct {
	BusinessUsersCanChat bool `mapstructure:"business_users_can_chat"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	// Enable environment variable override
	v.SetEnvPrefix("BANNER_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind env keys for nested config
	bindEnvVars(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if err := c.Alerts.Thresholds().Validate(); err != nil {
		return err
	}
	if _, err := c.Alerts.Location(); err != nil {
		return fmt.Errorf("alerts.timezone: %w", err)
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.BurstSize <= 0 {
		return errors.New("rate_limit values must be positive")
	}
	return nil
}

// loadEnvFile loads the first .env file found. Variables already present in
// the environment win.
func loadEnvFile() error {
	for _, path := range []string{".", "./config"} {
		envFile := filepath.Join(path, ".env")
		if _, err := os.Stat(envFile); err == nil {
			return godotenv.Load(envFile)
		}
	}
	return errors.New("no .env file found")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Database
	_ = v.BindEnv("database.url", "BANNER_SERVICE_DATABASE_URL", "DATABASE_URL")

	// Server
	_ = v.BindEnv("server.port", "BANNER_SERVICE_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.host", "BANNER_SERVICE_SERVER_HOST", "HOST")

	// Logging
	_ = v.BindEnv("logging.level", "BANNER_SERVICE_LOGGING_LEVEL", "LOG_LEVEL")

	// Storage
	_ = v.BindEnv("storage.base_path", "BANNER_SERVICE_STORAGE_BASE_PATH", "STORAGE_PATH")

	// Auth
	_ = v.BindEnv("auth.jwt_secret", "BANNER_SERVICE_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("auth.redis_url", "BANNER_SERVICE_AUTH_REDIS_URL", "REDIS_URL")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.snapshot_key", database.DefaultSnapshotKey)

	// Rate limit defaults
	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst_size", 10)

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_path", "./data/files")
	v.SetDefault("storage.s3.region", "ap-northeast-1")
	v.SetDefault("storage.s3.use_ssl", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)

	// Alert defaults
	defaults := alerts.DefaultThresholds()
	v.SetDefault("alerts.warning_days", defaults.WarningDays)
	v.SetDefault("alerts.attention_days", defaults.AttentionDays)
	v.SetDefault("alerts.timezone", "Asia/Tokyo")

	// Import defaults
	imp := importer.DefaultOptions()
	v.SetDefault("import.placeholder_image", imp.PlaceholderImage)
	v.SetDefault("import.default_portals", imp.DefaultPortals)
	v.SetDefault("import.row_delay", imp.RowDelay)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_ttl", 12*time.Hour)
	v.SetDefault("auth.redis_url", "")

	v.SetDefault("policy.business_users_can_chat", false)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "banner-service")
	v.SetDefault("telemetry.environment", "development")
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

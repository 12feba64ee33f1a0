// Package config loads and validates the EMS API configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the EMS_ prefix (e.g., EMS_DATABASE_HOST
// overrides database.host in the YAML, EMS_PLANTS_V2_BASE_URL overrides
// plants.v2.base_url).
//
// The ENCRYPTION_KEY variable has no EMS_ prefix because it is usually injected
// by infrastructure tooling (Kubernetes secrets, Vault agent) that treats it as a
// generic secret name. It protects two-factor secrets and recovery codes at rest.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Plants    PlantsConfig    `mapstructure:"plants"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Activity  ActivityConfig  `mapstructure:"activity"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the optional Redis connection. When disabled, challenges and
// verification tokens live in process memory and rate limiting is per-instance.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds bearer token and two-factor configuration
type AuthConfig struct {
	// AppName is the issuer label shown in authenticator apps.
	AppName string `mapstructure:"app_name"`
	// TokenTTL is how long an issued API token stays valid.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// ChallengeTTL bounds how long a pending two-factor challenge may be answered.
	ChallengeTTL time.Duration `mapstructure:"challenge_ttl"`
	// VerificationTTL bounds email verification and password reset tokens.
	VerificationTTL time.Duration `mapstructure:"verification_ttl"`
	// AllowUserIDHeader enables the X-User-Id fallback used by internal tooling.
	AllowUserIDHeader bool   `mapstructure:"allow_user_id_header"`
	BcryptCost        int    `mapstructure:"bcrypt_cost"`
	EncryptionKey     string `mapstructure:"encryption_key"`
}

// PlantsConfig groups settings for plant data sources
type PlantsConfig struct {
	V2 V2APIConfig `mapstructure:"v2"`
}

// V2APIConfig configures the remote V2 plant API.
//
// The *Paths lists are candidate endpoints tried in order; {uid} is replaced
// with the path-escaped plant UID.
type V2APIConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Token        string        `mapstructure:"token"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryTimes   int           `mapstructure:"retry_times"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	ListPaths    []string      `mapstructure:"list_paths"`
	DetailPaths  []string      `mapstructure:"detail_paths"`
	EventsPaths  []string      `mapstructure:"events_paths"`
	ReaggPaths   []string      `mapstructure:"reaggregated_paths"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// AuthRequestsPerMinute applies to login, challenge and password reset routes.
	AuthRequestsPerMinute int `mapstructure:"auth_requests_per_minute"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ActivityConfig controls the user activity recorder
type ActivityConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	LogReadOperations bool `mapstructure:"log_read_operations"`
}

// JobsConfig holds background job schedules
type JobsConfig struct {
	TokenCleanupInterval time.Duration `mapstructure:"token_cleanup_interval"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// AutomaticEnv() alone does not populate nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		// Redis
		"redis.enabled",
		"redis.addr",
		"redis.password",
		"redis.db",

		// Auth
		"auth.app_name",
		"auth.token_ttl",
		"auth.challenge_ttl",
		"auth.verification_ttl",
		"auth.allow_user_id_header",
		"auth.bcrypt_cost",

		// Remote plant API
		"plants.v2.base_url",
		"plants.v2.token",
		"plants.v2.timeout",
		"plants.v2.retry_times",
		"plants.v2.retry_backoff",
		"plants.v2.list_paths",
		"plants.v2.detail_paths",
		"plants.v2.events_paths",
		"plants.v2.reaggregated_paths",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.auth_requests_per_minute",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Activity
		"activity.enabled",
		"activity.log_read_operations",

		// Jobs
		"jobs.token_cleanup_interval",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	// Alternate names: the bare ENCRYPTION_KEY and the V2 API variables the
	// dashboard deployment already sets.
	aliases := map[string][]string{
		"auth.encryption_key": {"EMS_AUTH_ENCRYPTION_KEY", "ENCRYPTION_KEY"},
		"plants.v2.base_url":  {"EMS_PLANTS_V2_BASE_URL", "EMS_V2_API_BASE_URL"},
		"plants.v2.token":     {"EMS_PLANTS_V2_TOKEN", "EMS_V2_API_TOKEN"},
	}
	for key, names := range aliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ems-api")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("EMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Plants.V2.Token = expandEnv(cfg.Plants.V2.Token)
	cfg.Auth.EncryptionKey = expandEnv(cfg.Auth.EncryptionKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "ems")
	v.SetDefault("database.user", "ems")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.app_name", "EMS")
	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("auth.challenge_ttl", "10m")
	v.SetDefault("auth.verification_ttl", "60m")
	v.SetDefault("auth.allow_user_id_header", false)
	v.SetDefault("auth.bcrypt_cost", 12)

	// Remote plant API defaults
	v.SetDefault("plants.v2.timeout", "20s")
	v.SetDefault("plants.v2.retry_times", 2)
	v.SetDefault("plants.v2.retry_backoff", "250ms")
	v.SetDefault("plants.v2.list_paths", []string{"plants", "plants/list"})
	v.SetDefault("plants.v2.detail_paths", []string{"plants/{uid}/view", "plants/{uid}"})
	v.SetDefault("plants.v2.events_paths", []string{"plants/{uid}/events"})
	v.SetDefault("plants.v2.reaggregated_paths", []string{"plants/{uid}/reaggregated-data", "plants/{uid}/reaggregated"})

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.burst", 20)
	v.SetDefault("security.rate_limiting.auth_requests_per_minute", 10)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "ems-api")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Activity defaults
	v.SetDefault("activity.enabled", true)
	v.SetDefault("activity.log_read_operations", false)

	// Jobs defaults
	v.SetDefault("jobs.token_cleanup_interval", "1h")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if c.Auth.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY (auth.encryption_key) is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.ChallengeTTL <= 0 {
		return fmt.Errorf("auth.challenge_ttl must be positive")
	}

	if c.Plants.V2.Timeout <= 0 {
		return fmt.Errorf("plants.v2.timeout must be positive")
	}
	if c.Plants.V2.RetryTimes < 0 {
		return fmt.Errorf("plants.v2.retry_times must not be negative")
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Configured reports whether both the base URL and token of the remote plant
// API are set.
func (c *V2APIConfig) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != "" && strings.TrimSpace(c.Token) != ""
}

package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "ems",
				Password: "secret",
				Name:     "ems",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=ems password=secret dbname=ems sslmode=require",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:    "db.internal",
				Port:    5433,
				User:    "user",
				Name:    "plants",
				SSLMode: "disable",
			},
			want: "host=db.internal port=5433 user=user password= dbname=plants sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDSN()
			if got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetAddress(); got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// V2APIConfig.Configured
// ---------------------------------------------------------------------------

func TestV2APIConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  V2APIConfig
		want bool
	}{
		{"both set", V2APIConfig{BaseURL: "https://v2.example.com/api", Token: "t"}, true},
		{"missing token", V2APIConfig{BaseURL: "https://v2.example.com/api"}, false},
		{"missing base url", V2APIConfig{Token: "t"}, false},
		{"whitespace only", V2APIConfig{BaseURL: "  ", Token: "t"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, BaseURL: "http://localhost:8080"},
		Database: DatabaseConfig{Host: "localhost", Name: "ems", User: "ems"},
		Auth: AuthConfig{
			EncryptionKey: "0123456789abcdef0123456789abcdef",
			TokenTTL:      168 * time.Hour,
			ChallengeTTL:  10 * time.Minute,
		},
		Plants:  PlantsConfig{V2: V2APIConfig{Timeout: 20 * time.Second, RetryTimes: 2}},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Fatalf("Validate() unexpected error: %v", err)
		}
	})

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"missing database host", func(c *Config) { c.Database.Host = "" }},
		{"missing database name", func(c *Config) { c.Database.Name = "" }},
		{"missing database user", func(c *Config) { c.Database.User = "" }},
		{"redis enabled without addr", func(c *Config) { c.Redis = RedisConfig{Enabled: true} }},
		{"missing encryption key", func(c *Config) { c.Auth.EncryptionKey = "" }},
		{"zero token ttl", func(c *Config) { c.Auth.TokenTTL = 0 }},
		{"zero challenge ttl", func(c *Config) { c.Auth.ChallengeTTL = 0 }},
		{"zero remote timeout", func(c *Config) { c.Plants.V2.Timeout = 0 }},
		{"negative retries", func(c *Config) { c.Plants.V2.RetryTimes = -1 }},
		{"tls missing cert", func(c *Config) { c.Security.TLS = TLSConfig{Enabled: true, KeyFile: "key.pem"} }},
		{"tls missing key", func(c *Config) { c.Security.TLS = TLSConfig{Enabled: true, CertFile: "cert.pem"} }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() expected error for %s, got nil", tc.name)
			}
		})
	}

	t.Run("all valid log levels pass", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			cfg := minimalValidConfig()
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() unexpected error for log level %q: %v", level, err)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// expandEnv
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_SECRET", "super-secret")
	if got := expandEnv("${CONFIG_TEST_SECRET}"); got != "super-secret" {
		t.Errorf("expandEnv() = %q, want %q", got, "super-secret")
	}
	if got := expandEnv("plain"); got != "plain" {
		t.Errorf("expandEnv() = %q, want %q", got, "plain")
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_DefaultsApplied(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "test-encryption-key")
	path := writeTempConfig(t, "logging:\n  level: \"debug\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Auth.TokenTTL != 168*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 168h", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.ChallengeTTL != 10*time.Minute {
		t.Errorf("Auth.ChallengeTTL = %v, want 10m", cfg.Auth.ChallengeTTL)
	}
	if cfg.Plants.V2.Timeout != 20*time.Second {
		t.Errorf("Plants.V2.Timeout = %v, want 20s", cfg.Plants.V2.Timeout)
	}
	if cfg.Plants.V2.RetryTimes != 2 {
		t.Errorf("Plants.V2.RetryTimes = %d, want 2", cfg.Plants.V2.RetryTimes)
	}
	if cfg.Plants.V2.RetryBackoff != 250*time.Millisecond {
		t.Errorf("Plants.V2.RetryBackoff = %v, want 250ms", cfg.Plants.V2.RetryBackoff)
	}
	if len(cfg.Plants.V2.ListPaths) == 0 {
		t.Error("Plants.V2.ListPaths is empty, want defaults")
	}
	if cfg.Auth.AllowUserIDHeader {
		t.Error("Auth.AllowUserIDHeader should default to false")
	}
	if cfg.Auth.EncryptionKey != "test-encryption-key" {
		t.Errorf("Auth.EncryptionKey = %q, want value from ENCRYPTION_KEY", cfg.Auth.EncryptionKey)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
auth:
  encryption_key: "file-key"
  challenge_ttl: "5m"
plants:
  v2:
    base_url: "https://v2.example.com/api"
    token: "${CONFIG_TEST_V2_TOKEN}"
    list_paths: ["v2/plants"]
`
	t.Setenv("CONFIG_TEST_V2_TOKEN", "remote-token")
	path := writeTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Host != "testhost" || cfg.Server.Port != 9999 {
		t.Errorf("Server = %+v, want testhost:9999", cfg.Server)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("Database.Name = %q, want testdb", cfg.Database.Name)
	}
	if cfg.Auth.ChallengeTTL != 5*time.Minute {
		t.Errorf("Auth.ChallengeTTL = %v, want 5m", cfg.Auth.ChallengeTTL)
	}
	if cfg.Plants.V2.Token != "remote-token" {
		t.Errorf("Plants.V2.Token = %q, want expanded value", cfg.Plants.V2.Token)
	}
	if len(cfg.Plants.V2.ListPaths) != 1 || cfg.Plants.V2.ListPaths[0] != "v2/plants" {
		t.Errorf("Plants.V2.ListPaths = %v, want [v2/plants]", cfg.Plants.V2.ListPaths)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("EMS_DATABASE_HOST", "env-db")
	t.Setenv("EMS_AUTH_ALLOW_USER_ID_HEADER", "true")
	path := writeTempConfig(t, "database:\n  host: \"file-db\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Host != "env-db" {
		t.Errorf("Database.Host = %q, want env-db", cfg.Database.Host)
	}
	if !cfg.Auth.AllowUserIDHeader {
		t.Error("Auth.AllowUserIDHeader = false, want true from env")
	}
}

func TestLoad_MissingEncryptionKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	path := writeTempConfig(t, "logging:\n  level: \"info\"\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error without encryption key, got nil")
	}
	if !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Load() error = %v, want invalid configuration", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_V2APIEnvAliases(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("EMS_V2_API_BASE_URL", "https://v2.example.com/api")
	t.Setenv("EMS_V2_API_TOKEN", "legacy-token")
	path := writeTempConfig(t, "logging:\n  level: \"info\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Plants.V2.BaseURL != "https://v2.example.com/api" || cfg.Plants.V2.Token != "legacy-token" {
		t.Errorf("Plants.V2 = %+v, want values from EMS_V2_API_* env", cfg.Plants.V2)
	}
	if !cfg.Plants.V2.Configured() {
		t.Error("Configured() = false, want true")
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestLoadConfigOptional_EmptyPath tests loading when file path is empty
func TestLoadConfigOptional_EmptyPath(t *testing.T) {
	t.Setenv("PORT", "9999")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional with empty path should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
	if cfg.Port != 9999 {
		t.Errorf("Expected Port=9999 from env, got %d", cfg.Port)
	}
}

func TestLoadConfigOptional_WhitespacePath(t *testing.T) {
	cfg, err := LoadConfigOptional("   ")
	if err != nil {
		t.Fatalf("LoadConfigOptional with whitespace path should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
}

func TestLoadConfigOptional_FileNotExist(t *testing.T) {
	nonExistentPath := filepath.Join(t.TempDir(), "config-does-not-exist.yaml")

	cfg, err := LoadConfigOptional(nonExistentPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional with non-existent file should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
}

func TestLoadConfigOptional_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
port: 8080
redisAddr: "localhost:6379"
  invalid indentation here
  more bad yaml
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := LoadConfigOptional(configPath); err == nil {
		t.Fatal("Expected error when loading invalid YAML, got nil")
	}
}

func TestLoadConfigOptional_ValidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "valid.yaml")
	validYAML := `
port: 8080
dbUrl: "postgres://app:app@db:5432/app?sslmode=disable"
redisAddr: "localhost:6379"
redisPassword: "secret"
appKey: "file-app-key"
authScheme: "Watashiwasta"
accessTokenTtlSeconds: 600
allowedOrigins:
  - "https://app.example.com"
logLevel: "debug"
env: "test"
rateLimit:
  refresh:
    requestsPerMinute: 30
    burstSize: 3
`
	if err := os.WriteFile(configPath, []byte(validYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	cfg, err := LoadConfigOptional(configPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional with valid config should not error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected Port=8080, got %d", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://app:app@db:5432/app?sslmode=disable" {
		t.Errorf("unexpected DatabaseURL %q", cfg.DatabaseURL)
	}
	if cfg.RedisPassword != "secret" {
		t.Errorf("Expected RedisPassword='secret', got %q", cfg.RedisPassword)
	}
	if cfg.AppKey != "file-app-key" {
		t.Errorf("Expected AppKey from file, got %q", cfg.AppKey)
	}
	if cfg.AccessTokenTTLSeconds != 600 {
		t.Errorf("Expected AccessTokenTTLSeconds=600, got %d", cfg.AccessTokenTTLSeconds)
	}
	if cfg.RefreshTokenTTLSeconds != 86400 {
		t.Errorf("Expected default RefreshTokenTTLSeconds=86400, got %d", cfg.RefreshTokenTTLSeconds)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("unexpected AllowedOrigins %v", cfg.AllowedOrigins)
	}
	if cfg.RateLimit.Refresh.RequestsPerMinute != 30 || cfg.RateLimit.Refresh.BurstSize != 3 {
		t.Errorf("unexpected refresh bucket %+v", cfg.RateLimit.Refresh)
	}
	if cfg.Env != "test" {
		t.Errorf("Expected Env='test', got %q", cfg.Env)
	}
}

func TestLoadConfigOptional_EnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
port: 8080
redisAddr: "localhost:6379"
redisPassword: "file-password"
appKey: "file-app-key"
allowedOrigins: ["https://file.example.com"]
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "env-redis:6380")
	t.Setenv("REDIS_PASSWORD", "env-password")
	t.Setenv("APP_KEY", "env-app-key")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("AUTH_SCHEME", "Bearer")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")

	cfg, err := LoadConfigOptional(configPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional should not error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Expected Port=9090 from env, got %d", cfg.Port)
	}
	if cfg.RedisAddr != "env-redis:6380" {
		t.Errorf("Expected RedisAddr from env, got %q", cfg.RedisAddr)
	}
	if cfg.RedisPassword != "env-password" {
		t.Errorf("Expected RedisPassword from env, got %q", cfg.RedisPassword)
	}
	if cfg.AppKey != "env-app-key" {
		t.Errorf("Expected AppKey from env, got %q", cfg.AppKey)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "https://a.example.com|https://b.example.com" {
		t.Errorf("unexpected AllowedOrigins %v", cfg.AllowedOrigins)
	}
	if cfg.AuthScheme != "Bearer" {
		t.Errorf("Expected AuthScheme from env, got %q", cfg.AuthScheme)
	}
	if !cfg.TracingEnabled || cfg.OTLPEndpoint != "otel:4317" {
		t.Errorf("Expected tracing settings from env, got %v %q", cfg.TracingEnabled, cfg.OTLPEndpoint)
	}
}

func TestLoadConfigOptional_Defaults(t *testing.T) {
	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.AuthScheme != "Watashiwasta" {
		t.Errorf("Expected default scheme, got %q", cfg.AuthScheme)
	}
	if cfg.AccessTokenTTLSeconds != 3600 || cfg.RefreshTokenTTLSeconds != 86400 {
		t.Errorf("unexpected ttl defaults %d/%d", cfg.AccessTokenTTLSeconds, cfg.RefreshTokenTTLSeconds)
	}
	if cfg.AuthProvider != "hmac" {
		t.Errorf("Expected default provider hmac, got %q", cfg.AuthProvider)
	}
	if cfg.DBConnectAttempts != 3 {
		t.Errorf("Expected DBConnectAttempts=3, got %d", cfg.DBConnectAttempts)
	}
	if cfg.AppKey == "" {
		t.Error("Expected generated app key in dev")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate in dev: %v", err)
	}
}

func TestLoadConfigOptional_ZeroConfigKeyIsUnpredictable(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("APP_KEY", "")

	first, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	second, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if !first.IsDev() {
		t.Fatalf("Expected dev env by default, got %q", first.Env)
	}
	if len(first.AppKey) < 32 {
		t.Fatalf("Expected at least 32 key characters, got %d", len(first.AppKey))
	}
	if first.AppKey == second.AppKey {
		t.Fatal("Expected a fresh key per load, got the same key twice")
	}
	if first.AppKey == "dev-insecure-app-key" || second.AppKey == "dev-insecure-app-key" {
		t.Fatal("Expected no well-known development key")
	}
}

func TestLoadConfigOptional_ProdKeepsKeyEmpty(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("APP_KEY", "")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.AppKey != "" {
		t.Fatalf("Expected no generated key outside dev, got %q", cfg.AppKey)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "appKey") {
		t.Fatalf("Expected appKey validation error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"prod without key", func(c *Config) { c.Env = "prod"; c.AppKey = ""; c.DatabaseURL = "sqlite://x" }, "appKey"},
		{"prod without db", func(c *Config) { c.Env = "prod"; c.AppKey = "k" }, "dbUrl"},
		{"jwks without url", func(c *Config) { c.AuthProvider = "jwks" }, "jwksUrl"},
		{"static outside dev", func(c *Config) {
			c.Env = "prod"
			c.AuthProvider = "static"
			c.StaticToken = "t"
			c.DatabaseURL = "sqlite://x"
		}, "only allowed in dev"},
		{"unknown provider", func(c *Config) { c.AuthProvider = "ldap" }, "unknown authProvider"},
		{"scheme with space", func(c *Config) { c.AuthScheme = "My Scheme" }, "authScheme"},
		{"tracing without endpoint", func(c *Config) { c.TracingEnabled = true }, "otlpEndpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Env: "dev", AuthProvider: "hmac", AppKey: "k", AuthScheme: "Watashiwasta"}
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

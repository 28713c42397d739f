package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Bucket struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	Refresh Bucket `yaml:"refresh"`
}

type Config struct {
	Port                    int             `yaml:"port"`
	DatabaseURL             string          `yaml:"dbUrl"`
	DBConnectAttempts       int             `yaml:"dbConnectAttempts"`
	RedisAddr               string          `yaml:"redisAddr"`
	RedisPassword           string          `yaml:"redisPassword"`
	AppKey                  string          `yaml:"appKey"`
	AuthProvider            string          `yaml:"authProvider"`
	AuthScheme              string          `yaml:"authScheme"`
	TokenIssuer             string          `yaml:"tokenIssuer"`
	AccessTokenTTLSeconds   int             `yaml:"accessTokenTtlSeconds"`
	RefreshTokenTTLSeconds  int             `yaml:"refreshTokenTtlSeconds"`
	AllowedClockSkewSeconds int             `yaml:"allowedClockSkewSeconds"`
	JwksURL                 string          `yaml:"jwksUrl"`
	JwksAudience            string          `yaml:"jwksAudience"`
	StaticToken             string          `yaml:"staticToken"`
	AllowedOrigins          []string        `yaml:"allowedOrigins"`
	IdentityCacheTTLSeconds int             `yaml:"identityCacheTtlSeconds"`
	LogLevel                string          `yaml:"logLevel"`
	LogFormat               string          `yaml:"logFormat"`
	Env                     string          `yaml:"env"`
	TracingEnabled          bool            `yaml:"tracingEnabled"`
	OTLPEndpoint            string          `yaml:"otlpEndpoint"`
	OTLPInsecure            bool            `yaml:"otlpInsecure"`
	TraceSampleRatio        float64         `yaml:"traceSampleRatio"`
	RateLimit               RateLimitConfig `yaml:"rateLimit"`
}

// LoadConfig reads a YAML file, applies environment overrides and defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

// LoadConfigOptional behaves like LoadConfig but tolerates an empty path or a
// missing file, in which case only environment and defaults apply.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return fromEnv(), nil
	}
	c, err := LoadConfig(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return fromEnv(), nil
	}
	return c, err
}

func fromEnv() *Config {
	var c Config
	c.applyEnv()
	c.applyDefaults()
	return &c
}

func (c *Config) applyEnv() {
	envInt("PORT", &c.Port)
	envString("DB_URL", &c.DatabaseURL)
	envInt("DB_CONNECT_ATTEMPTS", &c.DBConnectAttempts)
	envString("REDIS_ADDR", &c.RedisAddr)
	envString("REDIS_PASSWORD", &c.RedisPassword)
	envString("APP_KEY", &c.AppKey)
	envString("AUTH_PROVIDER", &c.AuthProvider)
	envString("AUTH_SCHEME", &c.AuthScheme)
	envString("TOKEN_ISSUER", &c.TokenIssuer)
	envInt("ACCESS_TOKEN_TTL_SECONDS", &c.AccessTokenTTLSeconds)
	envInt("REFRESH_TOKEN_TTL_SECONDS", &c.RefreshTokenTTLSeconds)
	envInt("ALLOWED_CLOCK_SKEW_SECONDS", &c.AllowedClockSkewSeconds)
	envString("JWKS_URL", &c.JwksURL)
	envString("JWKS_AUDIENCE", &c.JwksAudience)
	envString("STATIC_TOKEN", &c.StaticToken)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	envInt("IDENTITY_CACHE_TTL_SECONDS", &c.IdentityCacheTTLSeconds)
	envString("LOG_LEVEL", &c.LogLevel)
	envString("LOG_FORMAT", &c.LogFormat)
	envString("ENV", &c.Env)
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.TracingEnabled = b
		}
	}
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTLPEndpoint)
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.OTLPInsecure = b
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.DBConnectAttempts <= 0 {
		c.DBConnectAttempts = 3
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.AuthProvider == "" {
		c.AuthProvider = "hmac"
	}
	if strings.TrimSpace(c.AuthScheme) == "" {
		c.AuthScheme = "Watashiwasta"
	}
	if c.AccessTokenTTLSeconds <= 0 {
		c.AccessTokenTTLSeconds = 3600
	}
	if c.RefreshTokenTTLSeconds <= 0 {
		c.RefreshTokenTTLSeconds = 86400
	}
	if c.AllowedClockSkewSeconds < 0 {
		c.AllowedClockSkewSeconds = 0
	}
	if c.IdentityCacheTTLSeconds <= 0 {
		c.IdentityCacheTTLSeconds = 300
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.TraceSampleRatio <= 0 || c.TraceSampleRatio > 1 {
		c.TraceSampleRatio = 1
	}
	if c.RateLimit.Refresh.RequestsPerMinute <= 0 {
		c.RateLimit.Refresh.RequestsPerMinute = 10
	}
	if c.RateLimit.Refresh.BurstSize <= 0 {
		c.RateLimit.Refresh.BurstSize = 5
	}
	if c.AppKey == "" && c.IsDev() {
		key, err := ephemeralKey()
		if err != nil {
			slog.Error("appKey not set and ephemeral key generation failed", "err", err)
			return
		}
		slog.Warn("appKey not set, generated an ephemeral development key; issued tokens will not survive a restart")
		c.AppKey = key
	}
}

// ephemeralKey returns 32 random bytes, hex encoded.
func ephemeralKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// IsDev reports whether the configured environment is development.
func (c *Config) IsDev() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "dev")
}

func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(strings.TrimSpace(c.AuthProvider)) {
	case "hmac":
		if strings.TrimSpace(c.AppKey) == "" {
			errs = append(errs, "appKey is required for the hmac provider")
		}
	case "jwks":
		if strings.TrimSpace(c.JwksURL) == "" {
			errs = append(errs, "jwksUrl is required for the jwks provider")
		}
	case "static":
		if !c.IsDev() {
			errs = append(errs, "static provider is only allowed in dev")
		}
		if strings.TrimSpace(c.StaticToken) == "" {
			errs = append(errs, "staticToken is required for the static provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown authProvider %q", c.AuthProvider))
	}

	if strings.ContainsAny(strings.TrimSpace(c.AuthScheme), " \t") {
		errs = append(errs, "authScheme must be a single token")
	}
	if c.TracingEnabled && strings.TrimSpace(c.OTLPEndpoint) == "" {
		errs = append(errs, "otlpEndpoint is required when tracing is enabled")
	}
	if c.DatabaseURL == "" && !c.IsDev() {
		errs = append(errs, "dbUrl is required in non-dev")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

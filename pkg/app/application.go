package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/osvaldoandrade/lambdaauth/internal/db"
	"github.com/osvaldoandrade/lambdaauth/internal/logging"
	"github.com/osvaldoandrade/lambdaauth/internal/metrics"
	"github.com/osvaldoandrade/lambdaauth/internal/middleware"
	"github.com/osvaldoandrade/lambdaauth/internal/providers"
	"github.com/osvaldoandrade/lambdaauth/internal/ratelimit"
	"github.com/osvaldoandrade/lambdaauth/internal/repository"
	"github.com/osvaldoandrade/lambdaauth/internal/response"
	"github.com/osvaldoandrade/lambdaauth/internal/services"
	"github.com/osvaldoandrade/lambdaauth/internal/tracing"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
	_ "github.com/osvaldoandrade/lambdaauth/pkg/auth/hmac"   // hmac provider
	_ "github.com/osvaldoandrade/lambdaauth/pkg/auth/jwks"   // jwks provider
	_ "github.com/osvaldoandrade/lambdaauth/pkg/auth/static" // static token provider (dev)
	"github.com/osvaldoandrade/lambdaauth/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

type Application struct {
	Config      *config.Config
	Engine      *gin.Engine
	Logger      *slog.Logger
	Responder   *response.Responder
	Verifier    auth.Verifier
	Issuer      auth.Issuer
	Tokens      services.TokenService
	Identities  repository.IdentityRepository
	RateLimiter ratelimit.Limiter
	Redis       *redis.Client
	DB          *db.Pool

	TracingShutdown func(context.Context) error

	logOutput io.Writer
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithVerifier replaces the verifier built from config. When v can also
// issue tokens it is used as the issuer too.
func WithVerifier(v auth.Verifier) ApplicationOption {
	return func(app *Application) error {
		if v == nil {
			return errors.New("nil verifier")
		}
		app.Verifier = v
		if iss, ok := v.(auth.Issuer); ok {
			app.Issuer = iss
		}
		return nil
	}
}

// WithRedisClient uses an existing redis client instead of dialing cfg.RedisAddr.
func WithRedisClient(rdb *redis.Client) ApplicationOption {
	return func(app *Application) error {
		app.Redis = rdb
		return nil
	}
}

// WithDBPool uses an existing database pool. The schema must already exist.
func WithDBPool(pool *db.Pool) ApplicationOption {
	return func(app *Application) error {
		app.DB = pool
		return nil
	}
}

// WithLogOutput redirects service logs, stdout by default.
func WithLogOutput(w io.Writer) ApplicationOption {
	return func(app *Application) error {
		app.logOutput = w
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	app := &Application{Config: cfg, logOutput: os.Stdout}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	logger := logging.New(app.logOutput, cfg.LogFormat, cfg.LogLevel, tracing.DefaultServiceName, cfg.Env)
	app.Logger = logger

	ctx := context.Background()
	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  tracing.DefaultServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		SampleRatio:  cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.TracingShutdown = shutdown

	if app.Verifier == nil {
		if err := app.buildVerifier(); err != nil {
			return nil, err
		}
	}

	if app.Redis == nil {
		app.Redis = providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
		if err := providers.PingRedis(ctx, app.Redis); err != nil {
			// rate limiting and the identity cache fail open
			logger.Warn("redis unavailable at startup", logging.Err(err))
		}
	}
	metrics.RegisterRedisCollector(app.Redis, logger)
	app.RateLimiter = ratelimit.NewTokenBucketLimiter(app.Redis)

	if app.DB == nil {
		pool, err := providers.NewDBPool(ctx, cfg.DatabaseURL, cfg.IsDev(), cfg.DBConnectAttempts)
		if err != nil {
			return nil, err
		}
		app.DB = pool
	}
	app.Identities = repository.NewCachedIdentityRepository(
		repository.NewIdentityRepository(app.DB),
		app.Redis,
		time.Duration(cfg.IdentityCacheTTLSeconds)*time.Second,
		logger,
	)

	app.Tokens = services.NewTokenService(
		app.Issuer,
		app.Identities,
		services.TokenTTLs{
			Access:  time.Duration(cfg.AccessTokenTTLSeconds) * time.Second,
			Refresh: time.Duration(cfg.RefreshTokenTTLSeconds) * time.Second,
		},
		cfg.AuthScheme,
		logger,
		time.Now,
	)

	app.Responder = response.New(cfg.AllowedOrigins)
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(logger),
		middleware.TracingMiddleware(),
		middleware.CORSMiddleware(app.Responder),
	)
	app.Engine = engine

	logger.Info("application initialised", "auth_provider", cfg.AuthProvider, "can_issue", app.Issuer != nil)
	return app, nil
}

func (app *Application) buildVerifier() error {
	cfg := app.Config
	var raw any
	switch cfg.AuthProvider {
	case "hmac":
		raw = map[string]any{
			"secret":            cfg.AppKey,
			"issuer":            cfg.TokenIssuer,
			"accessTtlSeconds":  cfg.AccessTokenTTLSeconds,
			"refreshTtlSeconds": cfg.RefreshTokenTTLSeconds,
			"leewaySeconds":     cfg.AllowedClockSkewSeconds,
		}
	case "jwks":
		raw = map[string]any{
			"jwksUrl":       cfg.JwksURL,
			"issuer":        cfg.TokenIssuer,
			"audience":      cfg.JwksAudience,
			"leewaySeconds": cfg.AllowedClockSkewSeconds,
		}
	case "static":
		raw = map[string]any{
			"token":      cfg.StaticToken,
			"ttlSeconds": cfg.AccessTokenTTLSeconds,
		}
	default:
		return fmt.Errorf("unknown auth provider %q", cfg.AuthProvider)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	v, err := auth.NewVerifier(auth.ProviderConfig{Type: cfg.AuthProvider, Config: b})
	if err != nil {
		return fmt.Errorf("build %s verifier: %w", cfg.AuthProvider, err)
	}
	app.Verifier = v
	if iss, ok := v.(auth.Issuer); ok {
		app.Issuer = iss
	}
	return nil
}

// Close releases the verifier, database, redis and tracing resources.
func (app *Application) Close(ctx context.Context) error {
	if c, ok := app.Verifier.(interface{ Close() }); ok {
		c.Close()
	}
	var errs []error
	if app.DB != nil {
		errs = append(errs, app.DB.Close())
	}
	if app.Redis != nil {
		errs = append(errs, app.Redis.Close())
	}
	if app.TracingShutdown != nil {
		errs = append(errs, app.TracingShutdown(ctx))
	}
	return errors.Join(errs...)
}

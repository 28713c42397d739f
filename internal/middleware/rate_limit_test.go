package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/lambdaauth/internal/ratelimit"
	"github.com/osvaldoandrade/lambdaauth/internal/response"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
	"github.com/osvaldoandrade/lambdaauth/pkg/config"
)

// mockLimiter implements ratelimit.Limiter for testing
type mockLimiter struct {
	decision ratelimit.Decision
	err      error
	subject  string
	calls    int
}

func (m *mockLimiter) Allow(ctx context.Context, scope string, subject string, bucket ratelimit.Bucket) (ratelimit.Decision, error) {
	m.calls++
	m.subject = subject
	return m.decision, m.err
}

type fixedVerifier struct{ claims *auth.Claims }

func (f fixedVerifier) Verify(string) (*auth.Claims, error) { return f.claims, nil }

func refreshConfig(rpm, burst int) *config.Config {
	return &config.Config{RateLimit: config.RateLimitConfig{Refresh: config.Bucket{RequestsPerMinute: rpm, BurstSize: burst}}}
}

// authedContext runs Authenticate with a verifier that accepts any
// credential for subject u1.
func authedContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	ctx.Request.Header.Set("Authorization", "Watashiwasta anything")
	v := fixedVerifier{claims: &auth.Claims{Subject: "u1", TokenType: auth.RefreshToken}}
	Authenticate(v, response.New(nil), auth.WithAllowRefresh(true))(ctx)
	if ctx.IsAborted() {
		t.Fatalf("authentication failed: %s", rec.Body.String())
	}
	return ctx, rec
}

func TestRateLimitRefresh_DisabledBucket(t *testing.T) {
	ctx, _ := authedContext(t)
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: false}}

	RateLimitRefresh(limiter, refreshConfig(0, 0), response.New(nil))(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected request to pass through for disabled bucket")
	}
	if limiter.calls != 0 {
		t.Fatal("limiter must not be consulted for a disabled bucket")
	}
}

func TestRateLimitRefresh_KeyedBySubject(t *testing.T) {
	ctx, rec := authedContext(t)
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 4}}

	RateLimitRefresh(limiter, refreshConfig(10, 5), response.New(nil))(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected request to pass through when rate limit allows")
	}
	if limiter.subject != "u1" {
		t.Fatalf("expected bucket keyed by subject, got %q", limiter.subject)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Fatalf("expected remaining header, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitRefresh_DeniedDecision(t *testing.T) {
	ctx, rec := authedContext(t)
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 5 * time.Second}}

	RateLimitRefresh(limiter, refreshConfig(10, 5), response.New(nil))(ctx)

	if !ctx.IsAborted() {
		t.Fatal("expected request to be aborted when rate limited")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 status, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "5" {
		t.Fatalf("expected Retry-After: 5, got %s", rec.Header().Get("Retry-After"))
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal JSON response: %v", err)
	}
	if body["retryAfterSeconds"] != float64(5) {
		t.Fatalf("expected retryAfterSeconds=5, got %v", body["retryAfterSeconds"])
	}
}

func TestRateLimitRefresh_RedisErrorFailsOpen(t *testing.T) {
	ctx, _ := authedContext(t)
	limiter := &mockLimiter{err: errors.New("redis down")}

	RateLimitRefresh(limiter, refreshConfig(10, 5), response.New(nil))(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected fail-open on limiter error")
	}
}

func TestRateLimitRefresh_Unauthenticated(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	limiter := &mockLimiter{decision: ratelimit.Decision{Allowed: false}}

	RateLimitRefresh(limiter, refreshConfig(10, 5), response.New(nil))(ctx)

	if limiter.calls != 0 {
		t.Fatal("unauthenticated requests are not rate limited here")
	}
}

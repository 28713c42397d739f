package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/lambdaauth/internal/metrics"
	"github.com/osvaldoandrade/lambdaauth/internal/ratelimit"
	"github.com/osvaldoandrade/lambdaauth/internal/response"
	"github.com/osvaldoandrade/lambdaauth/pkg/config"
)

// RateLimitRefresh limits token refreshes per authenticated subject. It must
// run after Authenticate.
func RateLimitRefresh(lim ratelimit.Limiter, cfg *config.Config, r *response.Responder) gin.HandlerFunc {
	return rateLimitSubject(lim, "refresh", cfg.RateLimit.Refresh, r)
}

func rateLimitSubject(lim ratelimit.Limiter, scope string, bcfg config.Bucket, r *response.Responder) gin.HandlerFunc {
	bucket := ratelimit.Bucket{RequestsPerMinute: bcfg.RequestsPerMinute, BurstSize: bcfg.BurstSize}
	return func(c *gin.Context) {
		if lim == nil || !bucket.Enabled() {
			c.Next()
			return
		}
		a, ok := AuthenticatorFrom(c)
		if !ok {
			c.Next()
			return
		}

		dec, err := lim.Allow(c.Request.Context(), scope, a.Subject(), bucket)
		if err != nil {
			// fail open on redis errors
			LoggerFrom(c).Warn("rate limit check failed", "scope", scope, "err", err)
			c.Next()
			return
		}
		if dec.Allowed {
			if dec.Remaining >= 0 {
				c.Header("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			}
			c.Next()
			return
		}

		retryAfterSeconds := int(dec.RetryAfter.Seconds())
		if retryAfterSeconds <= 0 {
			retryAfterSeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		metrics.RateLimitedTotal.WithLabelValues(scope).Inc()
		r.Abort(c, http.StatusTooManyRequests, gin.H{
			"message":           "Too many requests.",
			"retryAfterSeconds": retryAfterSeconds,
		})
	}
}

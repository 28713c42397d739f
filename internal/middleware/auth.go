package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/lambdaauth/internal/metrics"
	"github.com/osvaldoandrade/lambdaauth/internal/response"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
)

const authenticatorKey = "authenticator"

// Authenticate builds one auth.Authenticator per request around the shared
// verifier and stores it under "authenticator". Failures abort with the
// status chosen by response.FromError.
func Authenticate(verifier auth.Verifier, r *response.Responder, opts ...auth.AuthenticatorOption) gin.HandlerFunc {
	return func(c *gin.Context) {
		a := auth.NewAuthenticator(verifier, opts...)

		start := time.Now()
		err := a.Authenticate(c.Request.Header)
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		metrics.AuthLatencySeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		metrics.AuthAttemptsTotal.WithLabelValues(outcome, string(auth.KindOf(err))).Inc()

		if err != nil {
			r.FromError(c, err)
			return
		}

		c.Set(authenticatorKey, a)
		if subject := a.Subject(); subject != "" {
			c.Set("logger", LoggerFrom(c).With("subject", subject))
		}
		c.Next()
	}
}

// AuthenticatorFrom returns the request's authenticator.
func AuthenticatorFrom(c *gin.Context) (*auth.Authenticator, bool) {
	v, ok := c.Get(authenticatorKey)
	if !ok {
		return nil, false
	}
	a, ok := v.(*auth.Authenticator)
	return a, ok && a.Authenticated()
}

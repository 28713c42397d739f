package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/lambdaauth/internal/response"
)

// CORSMiddleware answers preflight requests and sets CORS headers on every
// other response.
func CORSMiddleware(r *response.Responder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			r.Preflight(c)
			return
		}
		r.ApplyCORS(c)
		c.Next()
	}
}

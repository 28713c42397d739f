// Package response writes JSON responses carrying the service's CORS headers.
package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/lambdaauth/internal/db"
	"github.com/osvaldoandrade/lambdaauth/internal/repository"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
)

const (
	allowHeaders = "Content-Type, Authorization"
	allowMethods = "OPTIONS,POST,GET,PUT,PATCH,DELETE"
)

type Responder struct {
	allowed map[string]bool
}

// New returns a Responder for the given origins. An empty list allows any
// origin.
func New(allowedOrigins []string) *Responder {
	r := &Responder{allowed: make(map[string]bool, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		if o != "" {
			r.allowed[o] = true
		}
	}
	return r
}

// ApplyCORS sets the CORS headers on the response. Allow-Origin echoes a
// listed Origin, is "*" when nothing is listed or no Origin was sent, and is
// omitted for unlisted origins.
func (r *Responder) ApplyCORS(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Allow-Methods", allowMethods)

	origin := c.GetHeader("Origin")
	switch {
	case origin == "":
		h.Set("Access-Control-Allow-Origin", "*")
	case r.allowed[origin]:
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Vary", "Origin")
	case len(r.allowed) == 0:
		h.Set("Access-Control-Allow-Origin", "*")
	}
}

func (r *Responder) JSON(c *gin.Context, status int, data any) {
	r.ApplyCORS(c)
	c.JSON(status, data)
}

// Abort writes data and stops the handler chain.
func (r *Responder) Abort(c *gin.Context, status int, data any) {
	r.ApplyCORS(c)
	c.AbortWithStatusJSON(status, data)
}

func (r *Responder) Success(c *gin.Context, data any) { r.JSON(c, http.StatusOK, data) }

func (r *Responder) Created(c *gin.Context, data any) { r.JSON(c, http.StatusCreated, data) }

func (r *Responder) BadRequest(c *gin.Context, message string) {
	r.Abort(c, http.StatusBadRequest, gin.H{"message": message})
}

func (r *Responder) Unauthorized(c *gin.Context) {
	r.Abort(c, http.StatusUnauthorized, gin.H{"message": "Unauthorized."})
}

func (r *Responder) Forbidden(c *gin.Context, message string) {
	r.Abort(c, http.StatusForbidden, gin.H{"message": message})
}

func (r *Responder) NotFound(c *gin.Context, data any) { r.Abort(c, http.StatusNotFound, data) }

func (r *Responder) UnprocessableEntity(c *gin.Context, data any) {
	r.Abort(c, http.StatusUnprocessableEntity, data)
}

func (r *Responder) ServerError(c *gin.Context, data any) {
	r.Abort(c, http.StatusInternalServerError, data)
}

// Preflight answers OPTIONS requests.
func (r *Responder) Preflight(c *gin.Context) {
	r.ApplyCORS(c)
	c.AbortWithStatus(http.StatusNoContent)
}

// FromError maps err to a status and writes a generic body. Details are
// logged, never returned.
func (r *Responder) FromError(c *gin.Context, err error) {
	status := StatusOf(err)
	logger := loggerFrom(c)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "err", err)
	default:
		logger.Info("request rejected", "status", status, "kind", string(auth.KindOf(err)), "err", err)
	}

	switch status {
	case http.StatusUnauthorized:
		r.Unauthorized(c)
	case http.StatusNotFound:
		r.NotFound(c, gin.H{"message": "Not found."})
	case http.StatusServiceUnavailable:
		r.Abort(c, status, gin.H{"message": "Service unavailable."})
	default:
		r.ServerError(c, gin.H{"message": "Internal server error."})
	}
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	switch auth.KindOf(err) {
	case auth.KindUnauthorized, auth.KindTokenMalformed, auth.KindSignatureInvalid,
		auth.KindTokenExpired, auth.KindTokenInvalid:
		return http.StatusUnauthorized
	case auth.KindSigning:
		return http.StatusInternalServerError
	}
	if errors.Is(err, repository.ErrNotFound) {
		return http.StatusNotFound
	}
	if db.IsConnection(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func loggerFrom(c *gin.Context) *slog.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

package controllers

import (
	"github.com/osvaldoandrade/lambdaauth/internal/middleware"
	"github.com/osvaldoandrade/lambdaauth/internal/response"
	"github.com/osvaldoandrade/lambdaauth/internal/services"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"

	"github.com/gin-gonic/gin"
)

type refreshTokenController struct {
	svc services.TokenService
	r   *response.Responder
}

func NewRefreshTokenController(svc services.TokenService, r *response.Responder) *refreshTokenController {
	return &refreshTokenController{svc: svc, r: r}
}

// Handle exchanges the refresh token on the request for a new pair. The
// route must authenticate with refresh tokens allowed.
func (h *refreshTokenController) Handle(c *gin.Context) {
	a, ok := middleware.AuthenticatorFrom(c)
	if !ok {
		h.r.FromError(c, auth.Unauthorized(auth.MissingAuthorizationHeader))
		return
	}
	claims, _ := a.Claims()
	pair, err := h.svc.Refresh(c.Request.Context(), claims)
	if err != nil {
		h.r.FromError(c, err)
		return
	}
	middleware.LoggerFrom(c).Info("token refreshed")
	h.r.Created(c, pair)
}

package controllers

import (
	"github.com/osvaldoandrade/lambdaauth/internal/middleware"
	"github.com/osvaldoandrade/lambdaauth/internal/response"
	"github.com/osvaldoandrade/lambdaauth/internal/services"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"

	"github.com/gin-gonic/gin"
)

type meController struct {
	svc services.TokenService
	r   *response.Responder
}

func NewMeController(svc services.TokenService, r *response.Responder) *meController {
	return &meController{svc: svc, r: r}
}

func (h *meController) Handle(c *gin.Context) {
	a, ok := middleware.AuthenticatorFrom(c)
	if !ok {
		h.r.FromError(c, auth.Unauthorized(auth.MissingAuthorizationHeader))
		return
	}
	claims, _ := a.Claims()
	identity, err := h.svc.Me(c.Request.Context(), claims)
	if err != nil {
		h.r.FromError(c, err)
		return
	}
	h.r.Success(c, identity)
}

package controllers

import (
	"github.com/osvaldoandrade/lambdaauth/internal/response"

	"github.com/gin-gonic/gin"
)

type healthController struct{ r *response.Responder }

func NewHealthController(r *response.Responder) *healthController {
	return &healthController{r}
}

func (h *healthController) Handle(c *gin.Context) {
	h.r.Success(c, gin.H{"status": "ok"})
}

package app

import (
	"github.com/osvaldoandrade/lambdaauth/internal/controllers"
	"github.com/osvaldoandrade/lambdaauth/internal/middleware"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", controllers.NewHealthController(app.Responder).Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	scheme := auth.WithScheme(app.Config.AuthScheme)
	v1 := app.Engine.Group("/v1/auth")
	{
		v1.GET("/me",
			middleware.Authenticate(app.Verifier, app.Responder, scheme),
			controllers.NewMeController(app.Tokens, app.Responder).Handle,
		)

		// verify-only providers cannot mint a new pair
		if app.Issuer != nil {
			v1.POST("/refresh",
				middleware.Authenticate(app.Verifier, app.Responder, scheme, auth.WithAllowRefresh(true)),
				middleware.RateLimitRefresh(app.RateLimiter, app.Config, app.Responder),
				controllers.NewRefreshTokenController(app.Tokens, app.Responder).Handle,
			)
		}
	}
}

package bootstrap

import (
	"fmt"
	"strings"

	"github.com/signet-auth/signet/internal/controller"
	"github.com/signet-auth/signet/internal/middleware"

	"github.com/gin-gonic/gin"
)

func (app *BootstrapApp) setupRouter() (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(gin.Recovery())

	if app.config.Server.TrustedProxies != "" {
		err := engine.SetTrustedProxies(strings.Split(app.config.Server.TrustedProxies, ","))

		if err != nil {
			return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
		}
	}

	contextMiddleware := middleware.NewContextMiddleware(app.services.tokenService)

	engine.Use(contextMiddleware.Middleware())

	zerologMiddleware := middleware.NewZerologMiddleware()

	engine.Use(zerologMiddleware.Middleware())

	apiRouter := engine.Group("/api")

	authController := controller.NewAuthController(controller.AuthControllerConfig{
		AppURL:       app.config.AppURL,
		CookieDomain: app.context.cookieDomain,
		SecureCookie: app.config.Auth.SecureCookie,
		Providers:    app.context.providers,
	}, apiRouter, app.services.stateService, app.services.userService, app.services.tokenService, app.services.clientService)

	authController.SetupRoutes()

	wellKnownController := controller.NewWellKnownController(controller.WellKnownControllerConfig{
		AppURL: app.config.AppURL,
	}, &engine.RouterGroup)

	wellKnownController.SetupRoutes()

	healthController := controller.NewHealthController(apiRouter)

	healthController.SetupRoutes()

	return engine, nil
}

package api

import (
	"github.com/allenai/olmoe-modeld/internal/api/controllers"
	"github.com/allenai/olmoe-modeld/internal/app"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	modelCtrl := &controllers.ModelController{App: app}

	e.GET("/healthz", modelCtrl.Health)

	e.GET("/api/v1/model", modelCtrl.State)
	e.POST("/api/v1/model/download", modelCtrl.StartDownload)
	e.POST("/api/v1/model/cancel", modelCtrl.CancelDownload)
	e.DELETE("/api/v1/model", modelCtrl.Flush)

	e.GET("/api/v1/attempts", modelCtrl.Attempts)
	e.GET("/api/v1/attempts/:id", modelCtrl.Attempt)
}

package server

import (
	"github.com/plantvision/leaf-server/internal/api"
	"github.com/plantvision/leaf-server/internal/api/middleware"
	"github.com/plantvision/leaf-server/internal/app"

	"github.com/gin-contrib/static"
)

func (s *Server) SetupRoutes(app *app.App) {
	cfg := app.Config()

	s.ginEngine.Use(middleware.RequestArrival(app.Logger.Named("http"), app.DiagLog))
	s.ginEngine.Use(middleware.Recovery(app.Logger.Named("http"), app.DiagLog))

	if cfg.PublicDir != "" {
		s.ginEngine.Use(static.Serve("/", static.LocalFile(cfg.PublicDir, true)))
	}

	h := api.NewHandler(cfg, app.Detector, app.Runner, app.Uploads, app.DiagLog, app.Logger.Named("api"))

	s.ginEngine.POST("/", h.Predict)
	s.ginEngine.GET("/health", h.Health)
	s.ginEngine.GET("/health/detail", h.HealthDetail)
	s.ginEngine.GET("/debug/render-errors", h.RenderErrors)

	apiGroup := s.ginEngine.Group("/api")
	apiGroup.GET("/ping", h.Ping)
	apiGroup.POST("/initialize-model", h.InitializeModel)
	apiGroup.POST("/predict-batch", h.PredictBatch)
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/plantvision/leaf-server/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
)

type Server struct {
	listenAddr string
	ginEngine  *gin.Engine
	inner      *http.Server
}

func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(getGinMode(cfg.Environment))
	r := gin.New()

	r.Use(logger.SetLogger(
		logger.WithUTC(true),
		logger.WithSkipPath([]string{"/api/ping"}),
	))

	r.Use(cors.New(
		cors.Config{
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowOrigins:     []string{"*"},
			AllowHeaders:     []string{"*"},
			ExposeHeaders:    []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		},
	))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		listenAddr: addr,
		ginEngine:  r,
		inner: &http.Server{
			Handler: r,
			Addr:    addr,
		},
	}, nil
}

func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return s.inner.Shutdown(ctx)
}

func getGinMode(env string) string {
	switch env {
	case "dev":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}

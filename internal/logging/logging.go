package logging

import (
	"github.com/plantvision/leaf-server/internal/config"

	"go.uber.org/zap"
)

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if cfg.Environment == "prod" {
		l, err = zap.NewProduction()
	} else if cfg.Environment == "test" {
		l = zap.NewExample()
	} else {
		l, err = zap.NewDevelopment()
	}

	return l, err
}

func MustNewLogger(cfg *config.Config) *zap.Logger {
	return zap.Must(NewLogger(cfg))
}

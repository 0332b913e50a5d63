package api

import (
	"context"

	"github.com/plantvision/leaf-server/internal/config"
	"github.com/plantvision/leaf-server/internal/detector"
	"github.com/plantvision/leaf-server/internal/logging"
	"github.com/plantvision/leaf-server/internal/runner"
	"github.com/plantvision/leaf-server/internal/upload"

	"go.uber.org/zap"
)

// DetectorService is the in-process inference surface the handlers depend on.
// *detector.Provider implements it; tests substitute deterministic stubs.
type DetectorService interface {
	Predict(imagePath string) (*detector.Result, error)
	PredictBatch(imagePaths []string) []detector.BatchItem
	Initialize(modelPath, labelsPath string) error
	Loaded() bool
	Info() detector.Info
}

// SubprocessService is the isolated inference surface used when
// inference.mode is "subprocess".
type SubprocessService interface {
	Predict(ctx context.Context, imagePath string) (*runner.Outcome, error)
}

// Handler carries the wired services into the route handlers.
type Handler struct {
	cfg      *config.Config
	detector DetectorService
	runner   SubprocessService
	uploads  *upload.Store
	diag     *logging.FileLog
	logger   *zap.Logger
}

func NewHandler(cfg *config.Config, det DetectorService, run SubprocessService, uploads *upload.Store, diag *logging.FileLog, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:      cfg,
		detector: det,
		runner:   run,
		uploads:  uploads,
		diag:     diag,
		logger:   logger,
	}
}

func (h *Handler) subprocessMode() bool {
	return h.cfg.Inference.Mode == config.InferenceSubprocess
}

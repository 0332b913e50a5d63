package app

import (
	"context"
	"os"
	"time"

	"github.com/plantvision/leaf-server/internal/config"
	"github.com/plantvision/leaf-server/internal/detector"
	"github.com/plantvision/leaf-server/internal/logging"
	"github.com/plantvision/leaf-server/internal/runner"
	"github.com/plantvision/leaf-server/internal/upload"

	"go.uber.org/zap"
)

// App is the composition root: it owns the detector provider, the subprocess
// runner and the upload store, and hands them to request handlers.
type App struct {
	config     *config.Config
	ctx        context.Context
	cancelFunc context.CancelFunc

	Logger   *zap.Logger
	DiagLog  *logging.FileLog
	Detector *detector.Provider
	Runner   *runner.Runner
	Uploads  *upload.Store
}

// OptionFunc wires one dependency into the App.
type OptionFunc func(app *App) error

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

// WithDetector builds the detector provider, applying any explicit input
// geometry from configuration.
func WithDetector() OptionFunc {
	return func(app *App) error {
		var opts []detector.Option
		mc := app.config.Model
		if mc.ImageWidth > 0 && mc.ImageHeight > 0 {
			opts = append(opts, detector.WithImageSize(mc.ImageWidth, mc.ImageHeight))
		}
		if mc.Layout != "" {
			opts = append(opts, detector.WithLayout(detector.Layout(mc.Layout)))
		}

		app.Detector = detector.NewProvider(app.Logger.Named("detector"), opts...)
		return nil
	}
}

// WithRunner builds the subprocess runner used when inference.mode is
// "subprocess".
func WithRunner() OptionFunc {
	return func(app *App) error {
		var opts []runner.Option
		opts = append(opts, runner.WithLogger(app.Logger.Named("runner")))
		if app.config.Inference.Bin != "" {
			opts = append(opts, runner.WithBinary(app.config.Inference.Bin))
		}

		timeout := time.Duration(app.config.Inference.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = time.Duration(config.DefaultTimeoutSeconds) * time.Second
		}

		app.Runner = runner.New(app.config.Model.Path, app.config.Model.LabelsPath, timeout, opts...)
		return nil
	}
}

func WithUploadStore() OptionFunc {
	return func(app *App) error {
		store, err := upload.NewStore(app.config.TempDir, app.Logger.Named("uploads"))
		if err != nil {
			return err
		}

		app.Uploads = store
		return nil
	}
}

func NewApp(cfg *config.Config, options ...OptionFunc) (*App, error) {
	logger, err := logging.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     cfg,
		cancelFunc: cancel,
		Logger:     logger,
		DiagLog:    logging.NewFileLog(cfg.DiagnosticLog),
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			cancel()
			return nil, err
		}
	}

	return app, nil
}

// InitializeModel walks the startup fallback chain and loads the first
// candidate whose model file exists. A fully absent chain is a warning, not
// an error: the server starts unloaded and reports 503 until
// /api/initialize-model succeeds.
func (app *App) InitializeModel() {
	candidates := app.modelCandidates()

	for _, c := range candidates {
		if !fileExists(c.ModelPath) {
			continue
		}
		if err := app.Detector.Initialize(c.ModelPath, c.LabelsPath); err != nil {
			app.Logger.Warn("failed to load model candidate",
				zap.String("model", c.ModelPath), zap.Error(err))
			continue
		}
		return
	}

	app.Logger.Warn("no model files found; serving in unloaded state",
		zap.String("models_dir", app.config.ModelsDir))
}

func (app *App) modelCandidates() []config.ModelCandidate {
	if app.config.Model.Path != "" {
		return []config.ModelCandidate{{
			ModelPath:  app.config.Model.Path,
			LabelsPath: app.config.Model.LabelsPath,
		}}
	}

	return config.DefaultModelCandidates(app.config.ModelsDir)
}

func (app *App) Close() {
	app.cancelFunc()

	if app.Detector != nil {
		if err := app.Detector.Close(); err != nil {
			app.Logger.Warn("failed to close detector", zap.Error(err))
		}
	}
	app.Logger.Sync()
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

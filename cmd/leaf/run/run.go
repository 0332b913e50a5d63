package run

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/plantvision/leaf-server/internal/app"
	"github.com/plantvision/leaf-server/internal/config"
	"github.com/plantvision/leaf-server/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the leaf disease detection server",
	RunE:  runApp,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", config.DefaultPort, "Port to run the server on")
	flags.String("host", config.DefaultHost, "Host to run the server on")
	flags.String("environment", "dev", "Environment configuration")
	flags.String("public-dir", "", "Path where static files should be served from")
	flags.String("diagnostic-log", "", "Path of the best-effort diagnostic text log")

	flags.String("model-path", "", "Path to the model file (.onnx or .ort)")
	flags.String("labels-path", "", "Path to the class indices JSON file")
	flags.Int("image-width", 0, "Explicit model input width (overrides shape introspection)")
	flags.Int("image-height", 0, "Explicit model input height (overrides shape introspection)")
	flags.String("layout", "", "Explicit input layout: nhwc or nchw")

	flags.String("inference-mode", config.InferenceInProcess, "Inference strategy: inprocess or subprocess")
	flags.Int("subprocess-timeout", config.DefaultTimeoutSeconds, "Per-prediction subprocess deadline in seconds")

	viper.BindPFlags(flags)

	// Nested config keys need explicit flag bindings; BindPFlags only covers
	// the flat ones.
	viper.BindPFlag("model.path", flags.Lookup("model-path"))
	viper.BindPFlag("model.labels_path", flags.Lookup("labels-path"))
	viper.BindPFlag("model.image_width", flags.Lookup("image-width"))
	viper.BindPFlag("model.image_height", flags.Lookup("image-height"))
	viper.BindPFlag("model.layout", flags.Lookup("layout"))
	viper.BindPFlag("inference.mode", flags.Lookup("inference-mode"))
	viper.BindPFlag("inference.timeout_seconds", flags.Lookup("subprocess-timeout"))

	bindEnvs()
}

func bindEnvs() {
	// Core settings, resolved with the LEAF_ prefix. Example: LEAF_PORT.
	viper.BindEnv("port")
	viper.BindEnv("host")
	viper.BindEnv("environment")
	viper.BindEnv("public_dir")
	viper.BindEnv("diagnostic_log")

	viper.BindEnv("model.path", "LEAF_MODEL_PATH")
	viper.BindEnv("model.labels_path", "LEAF_LABELS_PATH")
	viper.BindEnv("model.image_width", "LEAF_IMAGE_WIDTH")
	viper.BindEnv("model.image_height", "LEAF_IMAGE_HEIGHT")
	viper.BindEnv("model.layout", "LEAF_LAYOUT")

	viper.BindEnv("inference.mode", "LEAF_INFERENCE_MODE")
	viper.BindEnv("inference.timeout_seconds", "LEAF_SUBPROCESS_TIMEOUT")
}

func runApp(_ *cobra.Command, _ []string) error {
	application, err := createApp()
	if err != nil {
		return err
	}
	defer application.Close()

	// Load the startup model before accepting traffic; failure is not fatal,
	// the server just reports 503 until /api/initialize-model succeeds.
	application.InitializeModel()

	srv, err := server.NewServer(application.Config())
	if err != nil {
		return err
	}
	srv.SetupRoutes(application)

	errc := make(chan error, 1)
	go func() {
		application.Logger.Info("server started",
			zap.String("host", application.Config().Host),
			zap.Int("port", application.Config().Port),
			zap.String("inference_mode", application.Config().Inference.Mode),
		)
		errc <- srv.Start()
	}()

	signalc := make(chan os.Signal, 1)
	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-signalc:
		application.Logger.Info("shutting down")
		return srv.Stop(application.Context())
	}
}

func createApp() (*app.App, error) {
	return app.NewApp(config.MustGetConfig(),
		app.WithDetector(),
		app.WithRunner(),
		app.WithUploadStore(),
	)
}

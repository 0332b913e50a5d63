// Package infer implements the child half of the subprocess isolation
// boundary: load the model, predict once, print exactly one JSON object to
// stdout, exit. The parent (internal/runner) parses that object and maps exit
// codes and malformed output to structured failures.
package infer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/plantvision/leaf-server/internal/config"
	"github.com/plantvision/leaf-server/internal/detector"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	exitUsage       = 2
	exitLoadFailure = 4
	exitPredictFail = 5
)

var (
	imagePath  string
	modelPath  string
	labelsPath string
)

var Cmd = &cobra.Command{
	Use:           "infer",
	Short:         "Run one isolated prediction and print JSON to stdout",
	Hidden:        true,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(_ *cobra.Command, _ []string) {
		os.Exit(runInfer())
	},
}

func init() {
	flags := Cmd.Flags()
	flags.StringVar(&imagePath, "image", "", "Path of the image to classify")
	flags.StringVar(&modelPath, "model", "", "Path to the model file")
	flags.StringVar(&labelsPath, "labels", "", "Path to the class indices JSON file")
}

// runInfer never lets anything except a single JSON object reach stdout;
// the detector's own logging is routed to stderr.
func runInfer() int {
	if imagePath == "" {
		emit(map[string]any{"error": "image path required"})
		return exitUsage
	}

	cfg := config.MustGetConfig()
	if modelPath == "" {
		modelPath = cfg.Model.Path
	}
	if labelsPath == "" {
		labelsPath = cfg.Model.LabelsPath
	}

	logger := stderrLogger()
	defer logger.Sync()

	det := detector.New(logger)
	defer det.Close()

	if err := det.LoadModel(modelPath); err != nil {
		emit(map[string]any{"error": fmt.Sprintf("Failed to load model: %v", err)})
		return exitLoadFailure
	}

	if labelsPath != "" {
		// Missing labels are tolerated; predictions fall back to "Unknown".
		det.LoadLabels(labelsPath)
	}

	result, err := det.Predict(imagePath)
	if err != nil {
		emit(map[string]any{"error": fmt.Sprintf("Prediction failed: %v", err)})
		return exitPredictFail
	}

	emit(map[string]any{
		"disease":     result.Label,
		"confidence":  result.Confidence,
		"class_index": result.ClassIndex,
	})
	return 0
}

func emit(v map[string]any) {
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte(`{"error": "failed to encode result"}`)
	}
	fmt.Fprintln(os.Stdout, string(raw))
}

func stderrLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

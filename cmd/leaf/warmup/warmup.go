// Package warmup pre-loads the model and runs one dummy prediction so the
// first real request does not pay the cold-start cost.
package warmup

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/plantvision/leaf-server/internal/app"
	"github.com/plantvision/leaf-server/internal/config"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "warmup",
	Short: "Pre-warm the model with a dummy prediction",
	RunE:  runWarmup,
}

func runWarmup(_ *cobra.Command, _ []string) error {
	application, err := app.NewApp(config.MustGetConfig(), app.WithDetector())
	if err != nil {
		return err
	}
	defer application.Close()

	fmt.Println("Warming up model...")
	application.InitializeModel()

	if !application.Detector.Loaded() {
		return fmt.Errorf("failed to load any model from %s", application.Config().ModelsDir)
	}

	dummyPath, err := writeDummyImage(application.Config().TempDir)
	if err != nil {
		return err
	}
	defer os.Remove(dummyPath)

	result, err := application.Detector.Predict(dummyPath)
	if err != nil {
		return fmt.Errorf("warm-up prediction failed: %w", err)
	}

	fmt.Printf("Warm-up complete: %s (%.2f%%)\n", result.Label, result.Confidence*100)
	return nil
}

// writeDummyImage saves a plain green 224x224 JPEG into dir.
func writeDummyImage(dir string) (string, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}

	img := image.NewRGBA(image.Rect(0, 0, 224, 224))
	green := color.RGBA{G: 128, A: 255}
	for y := 0; y < 224; y++ {
		for x := 0; x < 224; x++ {
			img.Set(x, y, green)
		}
	}

	path := filepath.Join(dir, "warmup_test.jpg")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, nil); err != nil {
		return "", err
	}

	return path, nil
}

package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

const DefaultLeafHome = "~/.leaf-server"

const (
	DefaultPort           = 8000
	DefaultHost           = "localhost"
	DefaultTimeoutSeconds = 30
	DefaultImageSize      = 224
)

// ModelCandidate is one (model, labels) pair tried during startup. The first
// candidate whose model file exists wins.
type ModelCandidate struct {
	ModelPath  string
	LabelsPath string
}

// DefaultModelCandidates returns the startup fallback chain, smallest model
// first. The .ort entries cover pre-optimized runtime containers exported
// alongside the standard .onnx graphs.
func DefaultModelCandidates(modelsDir string) []ModelCandidate {
	return []ModelCandidate{
		{
			ModelPath:  filepath.Join(modelsDir, "plant_disease_cnn_simple.onnx"),
			LabelsPath: filepath.Join(modelsDir, "class_indices_cnn_simple.json"),
		},
		{
			ModelPath:  filepath.Join(modelsDir, "plant_disease_efficientnetb0.onnx"),
			LabelsPath: filepath.Join(modelsDir, "class_indices_efficientnetb0.json"),
		},
		{
			ModelPath:  filepath.Join(modelsDir, "plant_disease_model.onnx"),
			LabelsPath: filepath.Join(modelsDir, "class_indices.json"),
		},
		{
			ModelPath:  filepath.Join(modelsDir, "plant_disease_model.ort"),
			LabelsPath: filepath.Join(modelsDir, "class_indices.json"),
		},
	}
}

func setDefaults() {
	viper.SetDefault("port", DefaultPort)
	viper.SetDefault("host", DefaultHost)
	viper.SetDefault("environment", "dev")
	viper.SetDefault("public_dir", "web")
	viper.SetDefault("inference.mode", InferenceInProcess)
	viper.SetDefault("inference.timeout_seconds", DefaultTimeoutSeconds)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "LEAF"

const (
	InferenceInProcess  = "inprocess"
	InferenceSubprocess = "subprocess"
)

type Config struct {
	Port        int    `mapstructure:"port"`
	Host        string `mapstructure:"host"`
	Environment string `mapstructure:"environment"`
	LeafHome    string `mapstructure:"leaf_home"`
	ModelsDir   string `mapstructure:"models_dir"`
	TempDir     string `mapstructure:"temp_dir"`
	PublicDir   string `mapstructure:"public_dir"`

	// DiagnosticLog is an optional append-only text log for early request
	// diagnostics. Write failures are ignored.
	DiagnosticLog string `mapstructure:"diagnostic_log"`

	Model     ModelConfig     `mapstructure:"model"`
	Inference InferenceConfig `mapstructure:"inference"`
}

type ModelConfig struct {
	Path       string `mapstructure:"path"`
	LabelsPath string `mapstructure:"labels_path"`

	// Explicit input geometry. When width and height are both set they
	// override whatever the model's declared input shape says.
	ImageWidth  int    `mapstructure:"image_width"`
	ImageHeight int    `mapstructure:"image_height"`
	Layout      string `mapstructure:"layout"` // "nhwc" or "nchw"
}

type InferenceConfig struct {
	// Mode selects the single authoritative inference strategy:
	// "inprocess" or "subprocess".
	Mode string `mapstructure:"mode"`

	// TimeoutSeconds bounds one subprocess prediction, including the cold
	// model load.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`

	// Bin is the executable launched for subprocess predictions. Defaults
	// to the running binary itself (the `leaf infer` subcommand).
	Bin string `mapstructure:"bin"`
}

var config *Config

func IsLoaded() bool {
	return config != nil
}

// LoadEnvAndConfigFiles resolves the leaf home directory, loads the optional
// .env and config.yaml files, and unmarshals the final viper state.
func LoadEnvAndConfigFiles() error {
	leafHome, err := getLeafHome()
	if err != nil {
		return err
	}

	if err := createLeafHomeDirs(leafHome); err != nil {
		return err
	}

	viper.SetDefault("leaf_home", leafHome)
	viper.SetDefault("models_dir", filepath.Join(leafHome, "models"))
	viper.SetDefault("temp_dir", filepath.Join(leafHome, "temp"))
	setDefaults()

	envFile := viper.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(leafHome, ".env")
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`, `-`, `_`))
	viper.AutomaticEnv()

	configFile := viper.GetString("config_file")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
		viper.AddConfigPath(leafHome)
	}

	if err := LoadConfig(true); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		// No config file is fine; flags, env and defaults still apply.
		cfg := &Config{}
		if err := viper.Unmarshal(cfg); err != nil {
			return fmt.Errorf("error unmarshalling config: %w", err)
		}
		config = cfg
	}

	return nil
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	config = cfg
	return nil
}

func GetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

func MustGetConfig() *Config {
	return GetConfig()
}

// getLeafHome resolves the leaf home directory from, in order: the
// `leaf_home` viper key, the LEAF_HOME environment variable, and the default.
func getLeafHome() (string, error) {
	leafHome := viper.GetString("leaf_home")
	if leafHome == "" {
		leafHome = os.Getenv("LEAF_HOME")
		if leafHome == "" {
			leafHome = DefaultLeafHome
		}
	}

	leafHome, err := expandPath(leafHome)
	if err != nil {
		return "", fmt.Errorf("failed to expand leaf home path: %w", err)
	}

	return leafHome, nil
}

func createLeafHomeDirs(leafHome string) error {
	if err := os.MkdirAll(leafHome, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create leaf home directory: %w", err)
	}

	for _, subdir := range []string{"models", "temp"} {
		dir := filepath.Join(leafHome, subdir)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", subdir, err)
		}
	}

	return nil
}

// expandPath replaces a leading "~" with the user's home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(homeDir, path[1:])
	}

	return path, nil
}

package cmd

import (
	"strings"

	"github.com/plantvision/leaf-server/cmd/leaf/infer"
	"github.com/plantvision/leaf-server/cmd/leaf/run"
	"github.com/plantvision/leaf-server/cmd/leaf/warmup"
	"github.com/plantvision/leaf-server/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "LEAF"

var rootCmd = &cobra.Command{
	Use:   "leaf",
	Short: "Leaf disease detection server",
	Long:  "A web server that classifies plant leaf images against a pre-trained disease detection model",

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`,
			`.`, `_`,
		))
		viper.AutomaticEnv()

		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		return config.LoadEnvAndConfigFiles()
	},
}

func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	pflags := rootCmd.PersistentFlags()

	pflags.String("leaf-home", "", "Path to the leaf home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")

	viper.BindPFlag("leaf_home", pflags.Lookup("leaf-home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))

	rootCmd.AddCommand(run.Cmd, infer.Cmd, warmup.Cmd)
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

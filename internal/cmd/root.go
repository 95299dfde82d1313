package cmd

import (
	"github.com/Iron-Ham/tinytree/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "tinytree",
	Short: "Turn app ideas into deployed web apps",
	Long: `tinytree turns a one-line app idea or a markdown specification into a
deployed web app. It asks Claude Code to generate a Flutter project, builds
it for the web and publishes it to its own Firebase Hosting site, reporting
progress to a Slack thread or to the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/tinytree/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// TINYTREE_* variables plus the legacy names (CLAUDE_CODE_PATH, PORT, ...)
	config.BindEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

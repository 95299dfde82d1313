package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/tinytree/internal/config"
)

// redacted replaces secret values in config show.
const redacted = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or check tinytree configuration",
	Long: `View or check tinytree configuration.

Without arguments, displays the effective configuration: defaults, the
config file and environment variables merged. Secrets are masked.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configValidateFor string

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration",
	Long: `Check the configuration and report every problem found.

--for run also requires the settings a terminal run needs (tool path,
project root, Firebase project). --for serve additionally requires the
Slack credentials.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	configValidateCmd.Flags().StringVar(&configValidateFor, "for", "", "also check requirements of a command: run or serve")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "# Config file: (none - using defaults)\n")
	}

	data, err := yaml.Marshal(maskSecrets(*cfg))
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func maskSecrets(cfg config.Config) config.Config {
	for _, s := range []*string{
		&cfg.Slack.BotToken,
		&cfg.Slack.SigningSecret,
		&cfg.Slack.AppToken,
		&cfg.Server.APIToken,
	} {
		if *s != "" {
			*s = redacted
		}
	}
	return cfg
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var errs []config.ValidationError
	switch configValidateFor {
	case "":
	case "run":
		errs = cfg.ValidateForRun()
	case "serve":
		errs = cfg.ValidateForServe()
	default:
		return fmt.Errorf("unknown --for %q: want run or serve", configValidateFor)
	}
	if len(errs) > 0 {
		return config.ValidationErrors(errs)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintln(cmd.OutOrStdout(), used)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (not found)\n", config.ConfigFile())
	return nil
}

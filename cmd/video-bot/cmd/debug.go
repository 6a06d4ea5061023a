package cmd

import (
	"encoding/json"
	"fmt"

	"go-video-bot/internal/models"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugShowConfigCmd)
}

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debugging utilities (not for general use)",
	Long:  `Contains helper commands for debugging application behavior, like inspecting configuration.`,
}

var debugShowConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Print the fully loaded configuration object as JSON",
	Long: `Loads configuration via defaults, .env, config file, environment and
flags (respecting precedence) and prints the result to stdout as JSON.
The bot token is masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonBytes, err := json.MarshalIndent(redactConfig(globalConfig), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
		return nil
	},
}

// redactConfig returns a copy of cfg with the token masked.
func redactConfig(cfg models.Config) models.Config {
	cfg.Token = maskToken(cfg.Token)
	return cfg
}

// maskToken keeps the first and last four characters of token.
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	settingsAPIKey      string
	settingsModel       string
	settingsTemperature float64
)

// settingsCmd represents the settings command
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the chat settings",
	Long: `Show or change the settings used for every completion request:
the API key, the model and the sampling temperature.

Saved settings take precedence over the defaults from the configuration file
and environment (openai_api_key, default_model, default_temperature).`,
}

// settingsShowCmd represents the settings show command
var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.ctrl.Settings()
		fmt.Printf("APIKey: %s\n", s.MaskedAPIKey())
		fmt.Printf("Model: %s\n", s.Model)
		fmt.Printf("Temperature: %.1f\n", s.Temperature)
		return nil
	},
}

// settingsSetCmd represents the settings set command
var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change and save settings",
	Long: `Change and save settings. Only the flags given are changed.

Examples:
  prepc settings set --model gpt-4o-mini
  prepc settings set --temperature 0.2
  prepc settings set --api-key sk-...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if !flags.Changed("api-key") && !flags.Changed("model") && !flags.Changed("temperature") {
			return fmt.Errorf("nothing to change: specify --api-key, --model or --temperature")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.ctrl.Settings()
		if flags.Changed("api-key") {
			s.APIKey = settingsAPIKey
		}
		if flags.Changed("model") {
			s.Model = settingsModel
		}
		if flags.Changed("temperature") {
			s.Temperature = settingsTemperature
		}

		if err := a.ctrl.UpdateSettings(s); err != nil {
			return fmt.Errorf("invalid settings: %w", err)
		}

		fmt.Println("Settings saved.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	settingsSetCmd.Flags().StringVar(&settingsAPIKey, "api-key", "", "OpenAI API key")
	settingsSetCmd.Flags().StringVar(&settingsModel, "model", "", "Model ID (e.g. gpt-4o, gpt-4o-mini)")
	settingsSetCmd.Flags().Float64Var(&settingsTemperature, "temperature", 0.7, "Sampling temperature (0.0 - 2.0)")
}

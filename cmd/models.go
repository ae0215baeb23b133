/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var modelsFilter string

// modelsCmd represents the models command
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available to your API key",
	Long: `List all models available to the configured API key.
Fetches the latest model information directly from the API.

Example:
  prepc models               # List all models
  prepc models --filter gpt  # List models whose ID contains "gpt"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		models, err := a.client.ListModels(ctx, a.ctrl.Settings().APIKey)
		if err != nil {
			return fmt.Errorf("listing models: %w", err)
		}

		current := a.ctrl.Settings().Model
		count := 0
		fmt.Printf("Models available at %s:\n\n", a.client.BaseURL())
		for _, id := range models {
			if modelsFilter != "" && !strings.Contains(id, modelsFilter) {
				continue
			}
			marker := "  "
			if id == current {
				marker = "* "
			}
			fmt.Printf("%s%s\n", marker, id)
			count++
		}
		if count == 0 {
			fmt.Println("  (no models found)")
		}

		fmt.Printf("\nChange the model with: prepc settings set --model <id>\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().StringVar(&modelsFilter, "filter", "", "Only list models whose ID contains this string")
}

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var analyticsOutput string

// analyticsCmd represents the analytics command
var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show local usage statistics",
	Long: `Show the usage statistics recorded on this machine.

Statistics never leave the machine unless exported.`,
}

// analyticsShowCmd represents the analytics show command
var analyticsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a usage summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		summary := a.tracker.Summary()
		fmt.Printf("Tracking for: %s\n", summary.SessionDuration.Round(time.Minute))
		fmt.Printf("Total events: %d\n", summary.TotalEvents)
		fmt.Printf("Conversations created: %d\n", summary.Stats.ConversationsCreated)
		fmt.Printf("Messages sent: %d\n", summary.Stats.MessagesTotal)
		fmt.Printf("Exports: %d\n", summary.Stats.ExportCount)
		fmt.Printf("Imports: %d\n", summary.Stats.ImportCount)
		if len(summary.Stats.CategoriesExplored) > 0 {
			fmt.Printf("Categories explored: %s\n", strings.Join(summary.Stats.CategoriesExplored, ", "))
		}
		fmt.Printf("Activity: %d events in the last 24h, %d in the last week\n",
			summary.RecentActivity.Last24h, summary.RecentActivity.LastWeek)

		if len(summary.MostUsedPrompts) > 0 {
			fmt.Println("\nMost used templates:")
			for i, p := range summary.MostUsedPrompts {
				fmt.Printf("  %d. %s (%d)\n", i+1, p.PromptID, p.Count)
			}
		}
		return nil
	},
}

// analyticsExportCmd represents the analytics export command
var analyticsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the usage log as JSON",
	Long: `Export the usage summary and the full event log as JSON.

The file is named prepc-analytics-YYYY-MM-DD.json unless --output is given.
Use --output - to write to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		path := analyticsOutput
		if path == "" {
			path = fmt.Sprintf("prepc-analytics-%s.json", time.Now().Format("2006-01-02"))
		}
		if path == "-" {
			return a.tracker.Export(os.Stdout)
		}

		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create export file: %v", err)
		}
		if err := a.tracker.Export(f); err != nil {
			f.Close()
			return fmt.Errorf("exporting analytics: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write export file: %v", err)
		}

		fmt.Printf("Analytics exported to %s\n", path)
		return nil
	},
}

// analyticsClearCmd represents the analytics clear command
var analyticsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded usage data",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		// Flush pending events before they are wiped
		if err := a.bus.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		defer a.Close()

		if err := a.tracker.Clear(); err != nil {
			return fmt.Errorf("clearing analytics: %w", err)
		}
		fmt.Println("Analytics data cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
	analyticsCmd.AddCommand(analyticsShowCmd)
	analyticsCmd.AddCommand(analyticsExportCmd)
	analyticsCmd.AddCommand(analyticsClearCmd)

	analyticsExportCmd.Flags().StringVarP(&analyticsOutput, "output", "o", "", "Output file (default prepc-analytics-YYYY-MM-DD.json, - for stdout)")
}

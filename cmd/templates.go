/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/longkey1/prepc/internal/prepc/catalog"
	"github.com/longkey1/prepc/internal/prepc/config"
	"github.com/spf13/cobra"
)

// templatesCmd represents the templates command
var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Browse interview templates",
	Long: `Browse the interview templates conversations can start from.

Templates ship with the binary and can be extended or overridden with .toml files
in the configured prompt directories. Later directories take precedence.

A template file has the following structure:
[[categories]]
id = "algorithms"
name = "Algorithms & Data Structures"

[[categories.templates]]
id = "graph-problems"
title = "Graph Problems"
description = "Practice BFS, DFS and shortest paths"
difficulty = "Intermediate"
system_prompt = "You are an interviewer..."
initial_message = "Optional opening line of the interviewer"`,
}

// templatesListCmd represents the templates list command
var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		printTemplates(os.Stdout, cat)
		fmt.Printf("\nStart a conversation with: prepc chat --template <id>\n")
		return nil
	},
}

// templatesShowCmd represents the templates show command
var templatesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		tpl, ok := cat.Find(args[0])
		if !ok {
			return fmt.Errorf("template not found: %s\n\nRun 'prepc templates list' to see available templates.", args[0])
		}

		fmt.Printf("Template: %s\n", tpl.ID)
		fmt.Printf("Category: %s\n", tpl.Category)
		fmt.Printf("Title: %s\n", tpl.Title)
		if tpl.Difficulty != "" {
			fmt.Printf("Difficulty: %s\n", tpl.Difficulty)
		}
		fmt.Printf("Description: %s\n", tpl.Description)
		fmt.Printf("\nSystem Prompt:\n%s\n", tpl.SystemPrompt)
		if tpl.InitialMessage != "" {
			fmt.Printf("\nOpening Message:\n%s\n", tpl.InitialMessage)
		}
		return nil
	},
}

func loadCatalog() (*catalog.Catalog, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Prompt directories: %v\n", cfg.PromptDirs)
	}
	cat, err := catalog.Load(cfg.PromptDirs)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	return cat, nil
}

// printTemplates writes the catalog grouped by category
func printTemplates(out io.Writer, cat *catalog.Catalog) {
	for _, category := range cat.Categories() {
		fmt.Fprintf(out, "\n%s (%s)\n", category.Name, category.ID)
		if category.Description != "" {
			fmt.Fprintf(out, "  %s\n", category.Description)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, tpl := range category.Templates {
			difficulty := tpl.Difficulty
			if difficulty == "" {
				difficulty = "-"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\n", tpl.ID, difficulty, tpl.Title)
		}
		w.Flush()
	}
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesShowCmd)
}

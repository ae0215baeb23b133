/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/longkey1/prepc/internal/prepc/config"
	"github.com/longkey1/prepc/internal/prepc/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	logFile   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "prepc",
	Short: "An interview preparation chat client for OpenAI-compatible APIs",
	Long: `prepc is a command-line chat client for practicing technical and behavioral interviews.
Start a conversation from a built-in interview template or a blank session, and
the reply from the model is streamed as it arrives.

Conversations, settings and local usage statistics are stored on this machine only.
You can configure the tool using a TOML configuration file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/prepc/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file (rotated)")
}

// userConfigDir returns $HOME/.config/prepc
func userConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %v", err)
	}
	return filepath.Join(home, ".config", "prepc"), nil
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A .env file in the working directory seeds the environment.
	// Variables that are already set win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
	}

	viper.SetEnvPrefix("PREPC")
	viper.AutomaticEnv()

	dir, err := userConfigDir()
	cobra.CheckErr(err)

	defaultConfig := config.NewDefaultConfig(dir)
	viper.SetDefault("storage_driver", defaultConfig.StorageDriver)
	viper.SetDefault("storage_path", defaultConfig.StoragePath)
	viper.SetDefault("prompt_dirs", []string{
		"/usr/share/prepc/prompts",       // System package templates (lowest priority)
		"/usr/local/share/prepc/prompts", // Local install templates
		filepath.Join(dir, "prompts"),    // User-specific templates (highest priority)
	})
	viper.SetDefault("openai_base_url", defaultConfig.OpenAIBaseURL)
	viper.SetDefault("openai_api_key", defaultConfig.OpenAIAPIKey)
	viper.SetDefault("default_model", defaultConfig.DefaultModel)
	viper.SetDefault("default_temperature", defaultConfig.DefaultTemperature)
	viper.SetDefault("log_level", defaultConfig.LogLevel)
	viper.SetDefault("log_format", defaultConfig.LogFormat)
	viper.SetDefault("log_file", defaultConfig.LogFile)

	// Bind environment variables
	viper.BindEnv("storage_driver", "PREPC_STORAGE_DRIVER")
	viper.BindEnv("storage_path", "PREPC_STORAGE_PATH")
	viper.BindEnv("openai_base_url", "PREPC_OPENAI_BASE_URL")
	viper.BindEnv("openai_api_key", "PREPC_OPENAI_API_KEY")
	viper.BindEnv("default_model", "PREPC_DEFAULT_MODEL")
	viper.BindEnv("default_temperature", "PREPC_DEFAULT_TEMPERATURE")

	// Command line flags override everything else
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(dir)
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}

	if verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		fmt.Fprintln(os.Stderr, "Environment variables:")
		fmt.Fprintln(os.Stderr, "  PREPC_STORAGE_DRIVER:", viper.GetString("storage_driver"))
		fmt.Fprintln(os.Stderr, "  PREPC_STORAGE_PATH:", viper.GetString("storage_path"))
		fmt.Fprintln(os.Stderr, "  PREPC_OPENAI_BASE_URL:", viper.GetString("openai_base_url"))
		fmt.Fprintln(os.Stderr, "  PREPC_DEFAULT_MODEL:", viper.GetString("default_model"))
		fmt.Fprintln(os.Stderr, "  PREPC_DEFAULT_TEMPERATURE:", viper.GetString("default_temperature"))
	}
}

func initLogger() error {
	level := viper.GetString("log_level")
	if verbose && level != "trace" {
		level = "debug"
	}
	err := logging.Init(logging.Config{
		Level:      level,
		Format:     viper.GetString("log_format"),
		File:       viper.GetString("log_file"),
		WithCaller: verbose,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	return nil
}

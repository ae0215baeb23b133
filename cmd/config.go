package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/longkey1/prepc/internal/prepc/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configFields = "configfile, storage_driver, storage_path, storage_location, prompt_dirs, openai_base_url, openai_api_key, default_model, default_temperature, log_level, log_format, log_file"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [field]",
	Short: "Display current configuration",
	Long: `Display the current configuration values.
This command shows all configuration values loaded from the config file and environment variables.

If a field name is specified, only that field's value is displayed.
Available fields: ` + configFields + `

Examples:
  prepc config                   # Show all configuration
  prepc config storage_driver    # Show only the storage driver
  prepc config openai_api_key    # Show only the (masked) default API key
  prepc config prompt_dirs       # Show only prompt directories`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// If a field is specified, show only that field
		if len(args) > 0 {
			field := strings.ToLower(args[0])
			switch field {
			case "configfile":
				fmt.Println(viper.ConfigFileUsed())
			case "storage_driver", "storagedriver":
				fmt.Println(cfg.StorageDriver)
			case "storage_path", "storagepath":
				fmt.Println(cfg.StoragePath)
			case "storage_location", "storagelocation":
				fmt.Println(cfg.StorageLocation())
			case "prompt_dirs", "promptdirs":
				fmt.Println(strings.Join(cfg.PromptDirs, ","))
			case "openai_base_url", "openaibaseurl":
				fmt.Println(cfg.OpenAIBaseURL)
			case "openai_api_key", "openaiapikey":
				fmt.Println(maskToken(cfg.OpenAIAPIKey))
			case "default_model", "defaultmodel":
				fmt.Println(cfg.DefaultModel)
			case "default_temperature", "defaulttemperature":
				fmt.Println(cfg.DefaultTemperature)
			case "log_level", "loglevel":
				fmt.Println(cfg.LogLevel)
			case "log_format", "logformat":
				fmt.Println(cfg.LogFormat)
			case "log_file", "logfile":
				fmt.Println(cfg.LogFile)
			default:
				fmt.Fprintf(os.Stderr, "Available fields: %s\n", configFields)
				return fmt.Errorf("unknown field: %s", args[0])
			}
			return nil
		}

		// Display all configuration values
		fmt.Printf("ConfigFile: %s\n", viper.ConfigFileUsed())
		fmt.Printf("StorageDriver: %s\n", cfg.StorageDriver)
		fmt.Printf("StoragePath: %s\n", cfg.StoragePath)
		fmt.Printf("StorageLocation: %s\n", cfg.StorageLocation())
		// PromptDirs are already absolute paths
		fmt.Printf("PromptDirectories: %s\n", strings.Join(cfg.PromptDirs, ","))
		fmt.Printf("OpenAIBaseURL: %s\n", cfg.OpenAIBaseURL)
		fmt.Printf("OpenAIAPIKey: %s\n", maskToken(cfg.OpenAIAPIKey))
		fmt.Printf("DefaultModel: %s\n", cfg.DefaultModel)
		fmt.Printf("DefaultTemperature: %s\n", cfg.DefaultTemperature)
		fmt.Printf("LogLevel: %s\n", cfg.LogLevel)
		fmt.Printf("LogFormat: %s\n", cfg.LogFormat)
		fmt.Printf("LogFile: %s\n", cfg.LogFile)
		return nil
	},
}

// maskToken returns a masked version of the token for security
func maskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
}

package prepc

import "fmt"

const (
	DefaultModel       = "gpt-4o"
	DefaultTemperature = 0.7

	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// Settings holds the user-controlled parameters of every completion request
type Settings struct {
	APIKey      string  `json:"apiKey"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// DefaultSettings returns the hardcoded defaults
func DefaultSettings() Settings {
	return Settings{
		APIKey:      "",
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
	}
}

// Validate checks that the settings can be sent to the completion API
func (s Settings) Validate() error {
	if s.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if s.Temperature < MinTemperature || s.Temperature > MaxTemperature {
		return fmt.Errorf("temperature %.2f out of range [%.1f, %.1f]", s.Temperature, MinTemperature, MaxTemperature)
	}
	return nil
}

// MaskedAPIKey returns the API key with all but the last four characters hidden
func (s Settings) MaskedAPIKey() string {
	if s.APIKey == "" {
		return "(not set)"
	}
	if len(s.APIKey) <= 4 {
		return "****"
	}
	return "****" + s.APIKey[len(s.APIKey)-4:]
}

package config

import (
	"github.com/longkey1/prepc/internal/prepc"
	"github.com/longkey1/prepc/internal/prepc/store"
)

// EnvDefaults holds settings defaults read once at startup from the
// environment and config file. They apply only where no persisted value exists.
type EnvDefaults struct {
	APIKey      string
	Model       string
	Temperature *float64
}

// ResolveSettings applies the settings precedence:
// persisted value > environment default > hardcoded default.
//
// Persisted empty strings fall through to the next source; a persisted
// temperature of 0 is a real value and is kept.
func ResolveSettings(stored *store.StoredSettings, env EnvDefaults) prepc.Settings {
	settings := prepc.DefaultSettings()

	if env.APIKey != "" {
		settings.APIKey = env.APIKey
	}
	if env.Model != "" {
		settings.Model = env.Model
	}
	if env.Temperature != nil {
		settings.Temperature = *env.Temperature
	}

	if stored == nil {
		return settings
	}
	if stored.APIKey != "" {
		settings.APIKey = stored.APIKey
	}
	if stored.Model != "" {
		settings.Model = stored.Model
	}
	if stored.Temperature != nil {
		settings.Temperature = *stored.Temperature
	}
	return settings
}

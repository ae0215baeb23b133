package catalog

import (
	"fmt"
	"strings"
)

// ParseArgs parses key:value pairs used to fill {{key}} placeholders
func ParseArgs(args []string) (map[string]string, error) {
	result := make(map[string]string)
	for _, arg := range args {
		// Handle quoted values
		arg = strings.TrimSpace(arg)
		if strings.HasPrefix(arg, `"`) && strings.HasSuffix(arg, `"`) {
			arg = strings.Trim(arg, `"`)
		}

		parts := strings.SplitN(arg, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid argument format: %s. Expected format: key:value", arg)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			return nil, fmt.Errorf("invalid argument format: %s. Key cannot be empty", arg)
		}

		// Remove escape characters from value
		value = strings.ReplaceAll(value, `\:`, ":")
		value = strings.ReplaceAll(value, `\"`, `"`)

		result[key] = value
	}
	return result, nil
}

// Apply returns a copy of t with {{key}} placeholders in the system prompt
// and opening message replaced by vars. Unknown placeholders are kept.
func (t Template) Apply(vars map[string]string) Template {
	for key, value := range vars {
		placeholder := fmt.Sprintf("{{%s}}", key)
		t.SystemPrompt = strings.ReplaceAll(t.SystemPrompt, placeholder, value)
		t.InitialMessage = strings.ReplaceAll(t.InitialMessage, placeholder, value)
	}
	return t
}

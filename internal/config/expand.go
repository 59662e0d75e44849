package config

import (
	"os"
	"strings"
)

// expandEnvWithDefault expands $VAR and ${VAR} references and honours the
// ${VAR:-fallback} form for unset or empty variables.
func expandEnvWithDefault(value string) string {
	return os.Expand(value, func(key string) string {
		name, fallback, hasDefault := strings.Cut(key, ":-")
		resolved, ok := os.LookupEnv(name)
		if hasDefault && (!ok || resolved == "") {
			return fallback
		}
		return resolved
	})
}

func expandYAMLValues(doc map[string]any) {
	for key, value := range doc {
		doc[key] = expandValueRecursive(value)
	}
}

func expandValueRecursive(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		expandYAMLValues(typed)
		return typed
	case []any:
		for i, elem := range typed {
			typed[i] = expandValueRecursive(elem)
		}
		return typed
	case string:
		return expandEnvWithDefault(typed)
	default:
		return value
	}
}

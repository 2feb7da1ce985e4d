package textutil

import "strings"

// NormalizeKeys trims record keys, dropping entries whose key is blank.
// String values are trimmed as well; other values are kept untouched.
func NormalizeKeys(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]any, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if s, ok := value.(string); ok {
			value = strings.TrimSpace(s)
		}
		result[trimmedKey] = value
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

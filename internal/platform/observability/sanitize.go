package observability

import (
	"strings"
	"unicode"
)

// clip drops control characters and truncates to limit runes before values reach the log.
func clip(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	var b strings.Builder
	n := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// SanitizeRoute bounds a route or path for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clip(route, 180)
}

// SanitizeAction bounds an action name for logging and metric labels.
func SanitizeAction(action string) string {
	return clip(strings.TrimSpace(action), 48)
}

// SanitizeUserID bounds an account identifier for logging.
func SanitizeUserID(uid string) string {
	return clip(uid, 64)
}

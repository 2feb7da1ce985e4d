package textutil

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

func policy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// PlainText strips markup from shopper or admin supplied text and trims surrounding space.
func PlainText(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if !strings.ContainsAny(trimmed, "<>&") {
		return trimmed
	}
	cleaned := policy().Sanitize(trimmed)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

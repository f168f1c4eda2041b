package service

import "strings"

// IsAllowedSender reports whether the sender matches the allow-list. The
// sender is trimmed and upper-cased, and matches when any allow-list token,
// upper-cased, is a substring of it. An empty sender or empty allow-list
// never matches. Pure function, no side effects.
func IsAllowedSender(sender string, allowList []string) bool {
	if sender == "" || len(allowList) == 0 {
		return false
	}

	normalized := strings.ToUpper(strings.TrimSpace(sender))
	for _, token := range allowList {
		if strings.Contains(normalized, strings.ToUpper(token)) {
			return true
		}
	}

	return false
}

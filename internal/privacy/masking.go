package privacy

import "strings"

// MaskSender masks a sender identifier showing only the last 4 characters.
// Senders can be phone numbers ("+254712345678") or alphanumeric shortcodes
// ("M-PESA"); both carry account-identifying information.
func MaskSender(sender string) string {
	if sender == "" {
		return ""
	}

	// Slice runes, not bytes: sender names and bodies can carry non-ASCII text
	runes := []rune(sender)
	if strings.HasPrefix(sender, "+") {
		if len(runes) == 1 {
			return sender
		}
		if len(runes) <= 5 {
			return "+" + strings.Repeat("*", len(runes)-1)
		}
		return "+" + strings.Repeat("*", len(runes)-5) + string(runes[len(runes)-4:])
	}

	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

// MaskBody truncates a message body for logging. Bodies hold transaction
// amounts and balances and must never be logged in full outside verbose mode.
func MaskBody(body string) string {
	if body == "" {
		return ""
	}
	const visible = 12
	runes := []rune(body)
	if len(runes) <= visible {
		return string(runes[:len(runes)/2]) + "..."
	}
	return string(runes[:visible]) + "..."
}

// MaskMessageID keeps enough of a message ID to correlate log lines.
func MaskMessageID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

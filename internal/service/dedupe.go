package service

import (
	"smsrelay/internal/constants"
	"smsrelay/internal/models"
)

// IsDuplicate reports whether a candidate observation is already represented
// in the stored collection: exact sender and body match with timestamps less
// than the dedupe window apart. The bulk scan and the live event feed can both
// observe the same physical message, so near-simultaneous identical reports
// are one logical message.
//
// Known limitation: two genuinely distinct messages with identical sender and
// body arriving within the window are indistinguishable and collapse to one.
func IsDuplicate(sender, body string, timestamp int64, existing []models.Message) bool {
	for i := range existing {
		if existing[i].Sender != sender || existing[i].Body != body {
			continue
		}

		delta := existing[i].Timestamp - timestamp
		if delta < 0 {
			delta = -delta
		}
		if delta < constants.DedupeWindowMs {
			return true
		}
	}

	return false
}

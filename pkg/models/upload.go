package models

import "time"

// UploadItem is one queued, signed HSV snapshot awaiting delivery to
// the cloud upload endpoint.
type UploadItem struct {
	ID            string           `json:"id"`
	HSV           HumanStateVector `json:"hsv"`
	Signature     string           `json:"signature"` // hex HMAC-SHA256 of the canonical JSON of HSV
	Attempts      int              `json:"attempts"`
	NextAttemptAt time.Time        `json:"next_attempt_at"`
}

// Deliverable reports whether the item is eligible to be dispatched now.
func (u UploadItem) Deliverable(now time.Time) bool {
	return !now.Before(u.NextAttemptAt)
}

// ExhaustedRetries reports whether the item has hit the max-attempt cap.
func (u UploadItem) ExhaustedRetries(max int) bool {
	return u.Attempts >= max
}

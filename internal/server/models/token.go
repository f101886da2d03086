package models

import "time"

// VerificationToken is a single-use email activation token.
// Rows are kept after use for audit.
type VerificationToken struct {
	ID          string
	AccountID   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Verified    bool
	Invalidated bool
}

// Live reports whether the token can still be consumed, ignoring expiry.
func (t *VerificationToken) Live() bool {
	return !t.Verified && !t.Invalidated
}

func (t *VerificationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

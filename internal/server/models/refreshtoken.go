package models

import "time"

// RefreshToken is a rotating login credential. A token is consumed (deleted)
// every time it is exchanged for a new pair.
type RefreshToken struct {
	ID        string
	AccountID string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}

// Expired reports whether the token can no longer be exchanged at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.Expires)
}

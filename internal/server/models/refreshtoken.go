package models

import "time"

// RefreshToken is the persisted record a refresh credential points at.
// Generation grows by one on every successful rotation.
type RefreshToken struct {
	ID         int64
	UserID     int64
	Generation int64
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Revoked reports whether the record has been revoked.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// ExpiredAt reports whether the record is expired at now. A record expiring
// exactly at now is expired.
func (t *RefreshToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

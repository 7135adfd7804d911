package auth

import (
	"sync"
	"time"
)

// Denylist remembers revoked access credential ids until their natural expiry.
type Denylist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewDenylist() *Denylist {
	return &Denylist{entries: make(map[string]time.Time)}
}

// Revoke adds jti to the list until expiresAt.
func (d *Denylist) Revoke(jti string, expiresAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[jti] = expiresAt
}

// IsRevoked reports whether jti is denylisted at now.
func (d *Denylist) IsRevoked(jti string, now time.Time) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	exp, ok := d.entries[jti]
	return ok && now.Before(exp)
}

// Cleanup drops entries whose credentials would have expired anyway.
func (d *Denylist) Cleanup(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for jti, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, jti)
			removed++
		}
	}
	return removed
}

func (d *Denylist) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

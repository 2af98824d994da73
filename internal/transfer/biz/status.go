package biz

import "time"

// EffectiveStatus derives the status of t at now. It is the only status
// derivation consulted when deciding access; a persisted EXPIRED hint is
// ignored in favour of the clock.
func EffectiveStatus(t *Transfer, now time.Time) Status {
	switch {
	case t.Status == StatusRevoked:
		return StatusRevoked
	case now.After(t.ExpirationAt):
		return StatusExpired
	case t.DownloadLimit != nil && t.DownloadCount >= *t.DownloadLimit:
		return StatusExhausted
	default:
		return StatusActive
	}
}

package models

import "time"

// Session is the durable record of one device login. The refresh token
// itself is never stored; only its SHA-256 hash. PrevTokenHash keeps the
// hash of the token the current one replaced so that a replay of an
// already-rotated token can be recognized as theft.
type Session struct {
	ID            string
	UserID        string
	TokenHash     string
	PrevTokenHash string
	IPAddress     string
	UserAgent     string
	RememberMe    bool
	Revoked       bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Active reports whether the session can still be used to refresh.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

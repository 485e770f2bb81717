package entity

import "time"

// Session is the server-side record behind a session cookie.
// Logging out revokes it; a cookie whose record is revoked or gone is logged out.
type Session struct {
	ID        string     `json:"id"`         // UUID carried in the cookie as sid
	Username  string     `json:"username"`   // Owner
	UserAgent string     `json:"user_agent"` // Client's User-Agent header
	IPAddress string     `json:"ip_address"` // Client's IP address
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"` // nil while active
}

// IsExpired returns true if the session has passed its expiration time.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsRevoked returns true if the session has been revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsValid returns true if the session is neither expired nor revoked.
func (s *Session) IsValid() bool {
	return !s.IsExpired() && !s.IsRevoked()
}

package model

import "time"

// Session is a bearer token issued at login. One table serves all three
// principal namespaces (admin, provider, customer), distinguished by Kind.
// Sessions are deleted on logout; expired sessions are evicted lazily when
// looked up, never by a background sweep.
type Session struct {
	ID          string    `json:"id"`          // sessions.id (uuid)
	Kind        string    `json:"kind"`        // sessions.kind ("admin" | "provider" | "customer")
	PrincipalID string    `json:"principalId"` // sessions.principal_id (empty for admin)
	Token       string    `json:"-"`           // sessions.token (random hex, unique)
	CreatedAt   time.Time `json:"createdAt"`   // sessions.created_at
	ExpiresAt   time.Time `json:"expiresAt"`   // sessions.expires_at
}

// Expired reports whether the session is past its absolute expiry.
func (s Session) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }

// VerificationCode is a short-lived 6-digit code keyed by email. Only the
// most recently issued code for an email is honored; the code is deleted
// when it is successfully consumed.
type VerificationCode struct {
	ID        string    `json:"id"`        // verification_codes.id (uuid)
	Email     string    `json:"email"`     // verification_codes.email
	Code      string    `json:"code"`      // verification_codes.code
	ExpiresAt time.Time `json:"expiresAt"` // verification_codes.expires_at
	CreatedAt time.Time `json:"createdAt"` // verification_codes.created_at
}

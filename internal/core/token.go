package core

import "time"

// DecodeResult is the verified and decrypted content of a magic token.
type DecodeResult struct {
	// UpstreamCredential is the decrypted credential for the upstream API.
	// It must never be logged or returned to clients.
	UpstreamCredential string `json:"-"`

	// Scopes are names in the scope registry (mutually exclusive with Allowed).
	Scopes []string `json:"scopes,omitempty"`

	// Allowed are inline "METHOD pathPattern" permissions.
	Allowed []string `json:"allowed,omitempty"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Grants returns the scopes or allowed entries, whichever is set, for display.
func (d *DecodeResult) Grants() []string {
	if len(d.Scopes) > 0 {
		return d.Scopes
	}
	return d.Allowed
}

package core

import "time"

type AuditEntry struct {
	// ID is the unique request ID (X-Correlation-ID)
	ID string `json:"id"`

	// Time is the timestamp of the event
	Time time.Time `json:"time"`

	// Action describing what happened (e.g. "token.create", "proxy.request")
	Action string `json:"action"`

	// TokenFingerprint identifies the magic token without revealing it
	TokenFingerprint string `json:"token_fingerprint,omitempty"`

	// CredentialFingerprint is the hash of the upstream credential,
	// it can be correlated with the upstream's own audit log.
	CredentialFingerprint string `json:"credential_fingerprint,omitempty"`

	Scopes  []string `json:"scopes,omitempty"`
	Allowed []string `json:"allowed,omitempty"`

	// Request details for proxied requests
	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Detail holds the internal error, which is never shown to clients
	Detail string `json:"detail,omitempty"`

	// UpstreamStatus is the status code returned by the upstream API
	UpstreamStatus int `json:"upstream_status,omitempty"`
}

type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}

// Fingerprinter derives a non-reversible identifier from a secret.
type Fingerprinter func(secret string) string

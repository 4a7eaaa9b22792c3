package service

import "github.com/google/magic-github-proxy/internal/core"

// Authorization is a granted proxy request.
type Authorization struct {
	// Token is the decoded magic token, including the upstream credential.
	Token *core.DecodeResult

	// TokenFingerprint identifies the magic token in logs and audit entries.
	TokenFingerprint string

	Method string
	Path   string
}

// ExplainRequest asks how a magic token would be evaluated for a request.
type ExplainRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// ExplainResponse is the evaluation trace together with the grants of the token.
type ExplainResponse struct {
	Scopes  []string             `json:"scopes,omitempty"`
	Allowed []string             `json:"allowed,omitempty"`
	Trace   core.EvaluationTrace `json:"trace"`
}

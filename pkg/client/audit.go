package client

import (
	"context"

	"github.com/google/magic-github-proxy/internal/api"
	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/service"
)

type ListAuditsOpts struct {
	Limit uint

	CorrelationID string
	Fingerprint   string
	Action        string
}

// ListAudits retrieves the latest audit entries from the server, limited to the specified number.
func (c *Client) ListAudits(ctx context.Context, opts ListAuditsOpts) ([]core.AuditEntry, string, error) {
	ub := c.url().setPath(api.ListAuditsRoute)
	if opts.Limit > 0 {
		ub = ub.addQueryParam("limit", opts.Limit)
	}
	if opts.CorrelationID != "" {
		ub = ub.addQueryParam("correlation_id", opts.CorrelationID)
	}
	if opts.Fingerprint != "" {
		ub = ub.addQueryParam("fingerprint", opts.Fingerprint)
	}
	if opts.Action != "" {
		ub = ub.addQueryParam("action", opts.Action)
	}
	var resp []core.AuditEntry
	correlation, err := c.get(ctx, ub.build(), &resp)
	return resp, correlation, err
}

// ReplayAudit re-evaluates the audited proxy request with the given correlation id
// against the scopes currently configured on the server.
func (c *Client) ReplayAudit(ctx context.Context, correlationID string) (*service.ExplainResponse, string, error) {
	var resp service.ExplainResponse
	correlation, err := c.get(ctx, c.url().
		setPath(api.ReplayAuditRoute).
		setPathParam("id", correlationID).
		build(), &resp)
	return &resp, correlation, err
}

package client

import (
	"context"

	"github.com/go-jose/go-jose/v4"

	"github.com/google/magic-github-proxy/internal/api"
)

func (c *Client) Info(
	ctx context.Context,
) (*api.InfoResponse, string, error) {
	var info api.InfoResponse
	correlation, err := c.get(ctx, c.url().
		setPath(api.InfoRoute).
		build(), &info)
	return &info, correlation, err
}

// JWKS fetches the key set magic tokens of the server are signed with.
func (c *Client) JWKS(ctx context.Context) (*jose.JSONWebKeySet, string, error) {
	var set jose.JSONWebKeySet
	correlation, err := c.get(ctx, c.url().
		setPath(api.JWKSRoute).
		build(), &set)
	return &set, correlation, err
}

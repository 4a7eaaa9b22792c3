package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/magic-github-proxy/internal/api"
	"github.com/google/magic-github-proxy/internal/service"
)

// CreateTokenRequest exchanges an upstream credential for a magic token.
// Scopes and Allowed are mutually exclusive.
type CreateTokenRequest struct {
	Token   string   `json:"token"`
	Scopes  []string `json:"scopes,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
}

// CreateToken requests a new magic token from the server.
func (c *Client) CreateToken(ctx context.Context, payload CreateTokenRequest) (string, string, error) {
	marshalled, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("marshalling payload: %w", err)
	}

	// the response is not JSON, so our helper methods cannot be used
	req, err := http.NewRequestWithContext(ctx, "POST", c.url().
		setPath(api.CreateTokenRoute).
		build(), bytes.NewReader(marshalled))
	if err != nil {
		return "", "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("connection failed: %w", err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode >= 400 {
		return "", correlationFromResponse(resp), parseErrorResponse(resp)
	}

	token, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", correlationFromResponse(resp), fmt.Errorf("reading response: %w", err)
	}
	return strings.TrimSpace(string(token)), correlationFromResponse(resp), nil
}

// Explain asks the server how magicToken is evaluated for method and path.
func (c *Client) Explain(
	ctx context.Context,
	magicToken string,
	payload service.ExplainRequest,
) (*service.ExplainResponse, string, error) {
	marshalled, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url().
		setPath(api.ExplainRoute).
		build(), bytes.NewReader(marshalled))
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+magicToken)

	var resp service.ExplainResponse
	correlation, err := c.do(req, &resp)
	return &resp, correlation, err
}

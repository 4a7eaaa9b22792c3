package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/google/magic-github-proxy/internal/audit"
	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/engine"
	"github.com/google/magic-github-proxy/internal/logging"
	"github.com/google/magic-github-proxy/internal/magictoken"
	"github.com/google/magic-github-proxy/internal/metrics"
)

const bearerPrefix = "Bearer "

// MagicTokenService creates magic tokens and authorizes requests made with them.
type MagicTokenService struct {
	codec   *magictoken.Codec
	decoder magictoken.Decoder
	engines *engine.Manager
	auditor core.Auditor
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewMagicTokenService creates the service. decoder may be a cache in front of codec.
func NewMagicTokenService(
	codec *magictoken.Codec,
	decoder magictoken.Decoder,
	engines *engine.Manager,
	auditor core.Auditor,
	m *metrics.Metrics,
) *MagicTokenService {
	if decoder == nil {
		decoder = codec
	}
	return &MagicTokenService{
		codec:   codec,
		decoder: decoder,
		engines: engines,
		auditor: auditor,
		metrics: m,
		now:     time.Now,
	}
}

func (s *MagicTokenService) Engine() *engine.Engine {
	return s.engines.GetEngine()
}

func (s *MagicTokenService) audit(ctx context.Context, entry core.AuditEntry) {
	if err := s.auditor.Log(entry); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("action", entry.Action).Msg("failed to write audit log entry")
	}
}

// CreateToken validates a decoded JSON creation request and returns a signed magic token.
func (s *MagicTokenService) CreateToken(ctx context.Context, params map[string]any) (string, error) {
	logger := log.Ctx(ctx)

	auditEntry := core.AuditEntry{
		ID:     logging.CorrelationID(ctx),
		Time:   s.now(),
		Action: "token.create",
	}
	defer func() {
		s.audit(ctx, auditEntry)
	}()

	req, err := magictoken.ParseParams(s.Engine().Registry(), params)
	if err != nil {
		auditEntry.Error = "validation failed"
		auditEntry.Detail = err.Error()
		return "", httpError(http.StatusBadRequest, err)
	}
	auditEntry.Scopes = req.Scopes
	auditEntry.Allowed = req.Allowed
	auditEntry.CredentialFingerprint = audit.CalculateFingerprint(audit.GitHubFingerprintType, req.Token)

	token, err := s.codec.Create(req.Token, req.Scopes, req.Allowed)
	if err != nil {
		auditEntry.Error = "creating token failed"
		auditEntry.Detail = err.Error()
		return "", httpError(http.StatusInternalServerError, fmt.Errorf("creating token failed: %w", err))
	}

	auditEntry.Success = true
	auditEntry.TokenFingerprint = audit.CalculateFingerprint(audit.MagicTokenFingerprintType, token)
	s.metrics.TokenCreated()

	logger.Info().
		Str("token_fingerprint", auditEntry.TokenFingerprint).
		Strs("scopes", req.Scopes).
		Strs("allowed", req.Allowed).
		Msg("magic token created")

	return token, nil
}

// Authorize decodes the magic token from an Authorization header value and checks
// that it grants method and path. Failed authorizations are audited here, granted
// ones once the upstream responded, see RecordForwarded.
func (s *MagicTokenService) Authorize(ctx context.Context, authorization, method, path string) (*Authorization, error) {
	logger := log.Ctx(ctx)
	path = core.NormalizePath(path)

	auditEntry := core.AuditEntry{
		ID:     logging.CorrelationID(ctx),
		Time:   s.now(),
		Action: "proxy.request",
		Method: method,
		Path:   path,
	}

	if authorization == "" {
		s.metrics.Decision(metrics.DecisionMissingToken)
		auditEntry.Error = "missing token"
		s.audit(ctx, auditEntry)
		return nil, httpError(http.StatusUnauthorized, core.ErrAuthentication)
	}

	rawToken := strings.TrimPrefix(authorization, bearerPrefix)
	fingerprint := audit.CalculateFingerprint(audit.MagicTokenFingerprintType, rawToken)
	auditEntry.TokenFingerprint = fingerprint

	logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("token_fingerprint", fingerprint)
	})

	token, err := s.decoder.Decode(rawToken)
	if err != nil {
		// the reason stays internal
		logger.Debug().Err(err).Msg("rejected magic token")
		s.metrics.Decision(metrics.DecisionInvalidToken)
		auditEntry.Error = "invalid token"
		auditEntry.Detail = err.Error()
		s.audit(ctx, auditEntry)
		return nil, httpError(http.StatusUnauthorized, core.ErrInvalidToken)
	}
	auditEntry.Scopes = token.Scopes
	auditEntry.Allowed = token.Allowed
	auditEntry.CredentialFingerprint = audit.CalculateFingerprint(audit.GitHubFingerprintType, token.UpstreamCredential)

	if !s.Engine().ValidateRequest(ctx, method, path, token.Scopes, token.Allowed) {
		s.metrics.Decision(metrics.DecisionDenied)
		auditEntry.Error = "access denied"
		s.audit(ctx, auditEntry)
		return nil, httpError(http.StatusForbidden, fmt.Errorf("%w: disallowed by proxy, allowed scopes: %s",
			core.ErrAccessDenied, strings.Join(token.Grants(), ", ")))
	}

	s.metrics.Decision(metrics.DecisionGranted)
	return &Authorization{
		Token:            token,
		TokenFingerprint: fingerprint,
		Method:           method,
		Path:             path,
	}, nil
}

// RecordForwarded audits a granted request after it was forwarded upstream.
func (s *MagicTokenService) RecordForwarded(ctx context.Context, authz *Authorization, upstreamStatus int, forwardErr error) {
	entry := core.AuditEntry{
		ID:                    logging.CorrelationID(ctx),
		Time:                  s.now(),
		Action:                "proxy.request",
		TokenFingerprint:      authz.TokenFingerprint,
		CredentialFingerprint: audit.CalculateFingerprint(audit.GitHubFingerprintType, authz.Token.UpstreamCredential),
		Scopes:                authz.Token.Scopes,
		Allowed:               authz.Token.Allowed,
		Method:                authz.Method,
		Path:                  authz.Path,
		Success:               forwardErr == nil,
		UpstreamStatus:        upstreamStatus,
	}
	if forwardErr != nil {
		entry.Error = "upstream request failed"
		entry.Detail = forwardErr.Error()
	}
	s.audit(ctx, entry)
}

// Explain decodes a magic token and traces how it would be evaluated for a request.
func (s *MagicTokenService) Explain(ctx context.Context, authorization string, req ExplainRequest) (*ExplainResponse, error) {
	if authorization == "" {
		return nil, httpError(http.StatusUnauthorized, core.ErrAuthentication)
	}
	if req.Method == "" || req.Path == "" {
		return nil, httpError(http.StatusBadRequest, errors.New("method and path are required"))
	}

	token, err := s.decoder.Decode(strings.TrimPrefix(authorization, bearerPrefix))
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("rejected magic token")
		return nil, httpError(http.StatusUnauthorized, core.ErrInvalidToken)
	}

	return &ExplainResponse{
		Scopes:  token.Scopes,
		Allowed: token.Allowed,
		Trace:   s.Engine().Trace(ctx, req.Method, req.Path, token.Scopes, token.Allowed),
	}, nil
}

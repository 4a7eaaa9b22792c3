package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elnormous/contenttype"
	"github.com/rs/zerolog/log"

	"github.com/google/magic-github-proxy/internal/api/presenter"
	"github.com/google/magic-github-proxy/internal/buildinfo"
	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/service"
)

// JWTContentType is the media type of a created magic token.
const JWTContentType = "application/jwt"

const maxPayloadBytes = 1 << 20

var jsonMediaType = contenttype.NewMediaType("application/json")

// InfoResponse describes the running proxy.
type InfoResponse struct {
	buildinfo.Info
	APIRoot string `json:"api_root"`
}

// DecodePayload strictly decodes a JSON request body into dest.
func DecodePayload(r *http.Request, dest any, allowEmpty bool) error {
	mediaType, err := contenttype.GetMediaType(r)
	if err != nil || !mediaType.Matches(jsonMediaType) {
		return core.ErrNotJSON
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if !errors.Is(err, io.EOF) || !allowEmpty {
			return fmt.Errorf("%w: %w", core.ErrNotJSON, err)
		}
	}
	// ensure there's no extra data
	if dec.More() {
		return fmt.Errorf("%w: extra data in request body", core.ErrValidation)
	}
	return nil
}

// handleHealth responds with a simple OK status to indicate the server is healthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	presenter.Text(w, r, "text/plain; charset=utf-8", "OK", http.StatusOK)
}

// handleInfo responds with service information including version and upstream.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, InfoResponse{
		Info:    buildinfo.GetBuildInfo(),
		APIRoot: s.apiRoot,
	}, http.StatusOK)
}

// handleJWKS publishes the key magic tokens are signed with.
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, s.keys.JWKS(), http.StatusOK)
}

// handleCreateToken turns an upstream credential into a magic token.
func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)

	// the body is validated by the service, unknown fields included
	var params map[string]any
	if err := DecodePayload(r, &params, false); err != nil {
		logger.Warn().Err(err).Msg("failed to decode create request payload")
		presenter.Error(w, r, core.ErrNotJSON.Error(), http.StatusBadRequest)
		return
	}

	token, err := s.service.CreateToken(ctx, params)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to create magic token")
		presenter.Err(w, r, err, "")
		return
	}

	presenter.Text(w, r, JWTContentType, token, http.StatusOK)
}

// handleExplain traces how the bearer magic token is evaluated for a method and path.
func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)

	var req service.ExplainRequest
	if err := DecodePayload(r, &req, false); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to decode explain request payload")
		presenter.Error(w, r, "invalid request payload", http.StatusBadRequest)
		return
	}

	resp, err := s.service.Explain(ctx, r.Header.Get("Authorization"), req)
	if err != nil {
		presenter.Err(w, r, err, "")
		return
	}

	presenter.JSON(w, r, resp, http.StatusOK)
}

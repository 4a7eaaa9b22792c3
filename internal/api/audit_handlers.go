package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/google/magic-github-proxy/internal/api/presenter"
	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/service"
)

// auditReader is implemented by auditors that keep their entries queryable.
type auditReader interface {
	GetRecent(limit int) []core.AuditEntry
	Find(filter func(entry core.AuditEntry) bool, limit int) []core.AuditEntry
}

func (s *Server) auditReader(w http.ResponseWriter, r *http.Request) (auditReader, bool) {
	reader, ok := s.auditor.(auditReader)
	if !ok {
		presenter.Error(w, r, "the configured auditor cannot be queried", http.StatusNotImplemented)
	}
	return reader, ok
}

// handleAdminAudit processes requests to retrieve audit log entries.
func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	reader, ok := s.auditReader(w, r)
	if !ok {
		return
	}

	// filters
	q := r.URL.Query()
	limitStr := q.Get("limit")

	filterCorrelationID := q.Get("correlation_id")
	filterFingerprint := q.Get("fingerprint")
	filterAction := q.Get("action")

	limit := 50
	if limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err != nil {
			logger.Warn().Err(err).Str("limit", limitStr).Msg("invalid limit parameter")
			presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
			return
		} else {
			limit = v
		}
	}

	var entries []core.AuditEntry
	if filterCorrelationID != "" || filterFingerprint != "" || filterAction != "" {
		logger.Info().Msgf("applying audit log filters")
		entries = reader.Find(func(entry core.AuditEntry) bool {
			if filterCorrelationID != "" && entry.ID != filterCorrelationID {
				return false
			}
			if filterFingerprint != "" && entry.TokenFingerprint != filterFingerprint {
				return false
			}
			if filterAction != "" && entry.Action != filterAction {
				return false
			}
			return true
		}, limit)
	} else {
		logger.Debug().Msgf("retrieving recent audit log entries")
		entries = reader.GetRecent(limit)
	}

	if entries == nil {
		entries = []core.AuditEntry{}
	}
	presenter.JSON(w, r, entries, http.StatusOK)
}

// handleAdminReplay re-evaluates an audited proxy request against the current scope registry.
func (s *Server) handleAdminReplay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	reader, ok := s.auditReader(w, r)
	if !ok {
		return
	}

	replayID := r.PathValue("id")
	logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("replay_id", replayID)
	})

	entries := reader.Find(func(entry core.AuditEntry) bool {
		return entry.ID == replayID && entry.Action == "proxy.request"
	}, 1)
	if len(entries) == 0 {
		presenter.Error(w, r, "no proxy request found for replay", http.StatusNotFound)
		return
	}
	entry := entries[0]
	if entry.Method == "" || (len(entry.Scopes) == 0 && len(entry.Allowed) == 0) {
		presenter.Error(w, r, "audit entry carries no grants to replay", http.StatusBadRequest)
		return
	}

	logger.Debug().Msg("replaying audit log entry")

	presenter.JSON(w, r, service.ExplainResponse{
		Scopes:  entry.Scopes,
		Allowed: entry.Allowed,
		Trace:   s.service.Engine().Trace(ctx, entry.Method, entry.Path, entry.Scopes, entry.Allowed),
	}, http.StatusOK)
}

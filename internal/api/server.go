package api

import (
	"net/http"

	"github.com/google/magic-github-proxy/internal/api/middleware"
	"github.com/google/magic-github-proxy/internal/api/presenter"
	"github.com/google/magic-github-proxy/internal/audit"
	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/keys"
	"github.com/google/magic-github-proxy/internal/metrics"
	"github.com/google/magic-github-proxy/internal/service"
)

type Server struct {
	service *service.MagicTokenService
	keys    *keys.Keys
	proxy   http.Handler
	auditor core.Auditor
	metrics *metrics.Metrics
	apiRoot string
}

func NewServer(
	svc *service.MagicTokenService,
	k *keys.Keys,
	proxy http.Handler,
	auditor core.Auditor,
	m *metrics.Metrics,
	apiRoot string,
) *Server {
	if auditor == nil {
		auditor = audit.NewNoopAuditor()
	}

	return &Server{
		service: svc,
		keys:    k,
		proxy:   proxy,
		auditor: auditor,
		metrics: m,
		apiRoot: apiRoot,
	}
}

// Routes builds the handler for the whole server. adminSigningKey guards the
// audit routes; without it they are disabled.
func (s *Server) Routes(adminSigningKey []byte) http.Handler {
	mux := http.NewServeMux()

	// magic token routes
	mux.HandleFunc("GET "+InfoRoute, s.handleInfo)
	mux.HandleFunc("POST "+CreateTokenRoute, s.handleCreateToken)
	mux.HandleFunc("GET "+JWKSRoute, s.handleJWKS)
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.Handle("GET "+MetricsRoute, s.metrics.Handler())
	mux.HandleFunc("POST "+ExplainRoute, s.handleExplain)

	// admin routes
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET "+ListAuditsRoute, s.handleAdminAudit)
	adminMux.HandleFunc("GET "+ReplayAuditRoute, s.handleAdminReplay)
	mux.Handle(AuditParent, middleware.AdminAuth(adminSigningKey)(adminMux))

	// the prefix stays reserved, nothing below it is forwarded
	mux.HandleFunc(ReservedPrefix, s.handleMethodNotAllowed)
	mux.HandleFunc(ReservedPrefix+"/", s.handleNotFound)

	mux.Handle("/", s.proxy)

	return middleware.RecoverMiddleware(
		middleware.CorrelationIDMiddleware(
			middleware.LoggingMiddleware(HealthCheckRoute, MetricsRoute)(
				mux)))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	presenter.Error(w, r, "method not allowed", http.StatusMethodNotAllowed)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	presenter.Error(w, r, "not found", http.StatusNotFound)
}

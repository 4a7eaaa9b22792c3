package api

// Everything below the reserved prefix is served by the proxy itself,
// every other path is forwarded upstream.
const (
	ReservedPrefix = "/__magictoken"

	InfoRoute        = ReservedPrefix
	CreateTokenRoute = ReservedPrefix
	JWKSRoute        = ReservedPrefix + "/jwks.json"
	HealthCheckRoute = ReservedPrefix + "/healthz"
	MetricsRoute     = ReservedPrefix + "/metrics"
	ExplainRoute     = ReservedPrefix + "/explain"

	AuditParent      = ReservedPrefix + "/audit/"
	ListAuditsRoute  = AuditParent + "audits"
	ReplayAuditRoute = AuditParent + "audits/{id}/explain"
)

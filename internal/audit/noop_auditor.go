package audit

import "github.com/google/magic-github-proxy/internal/core"

var _ core.Auditor = (*NoopAuditor)(nil)

// NoopAuditor drops all entries. It is used when auditing is disabled and by local CLI commands.
type NoopAuditor struct{}

func NewNoopAuditor() *NoopAuditor {
	return &NoopAuditor{}
}

func (n *NoopAuditor) Log(core.AuditEntry) error {
	return nil
}

func (n *NoopAuditor) Close() error {
	return nil
}

package audit

import (
	"fmt"

	"github.com/google/magic-github-proxy/internal/buildinfo"
)

// UserAgent is sent upstream when the client did not send a User-Agent,
// so upstream logs can be joined with the audit log.
func UserAgent(correlationID string) string {
	return fmt.Sprintf("magicproxy/%s (correlation_id=%s)", buildinfo.Version, correlationID)
}

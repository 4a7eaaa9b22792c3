package audit

import (
	"crypto/sha256"
	"encoding/base64"
	"sort"

	"github.com/google/magic-github-proxy/internal/core"
)

const (
	DefaultFingerprintType = "default"

	// MagicTokenFingerprintType identifies magic tokens in the audit log.
	MagicTokenFingerprintType = "magictoken"

	// GitHubFingerprintType matches the hashed_token field of the GitHub audit log,
	// it is used for upstream credentials.
	GitHubFingerprintType = "github"
)

var fingerprintRegistry = map[string]core.Fingerprinter{
	DefaultFingerprintType: func(_ string) string {
		return "(n/a)"
	},
}

func RegisterFingerprinter(fingerprintType string, fn core.Fingerprinter) {
	fingerprintRegistry[fingerprintType] = fn
}

func CalculateFingerprint(fingerprintType, secret string) string {
	fn, ok := fingerprintRegistry[fingerprintType]
	if !ok {
		fn = fingerprintRegistry[DefaultFingerprintType]
	}
	return fn(secret)
}

func RegisteredFingerprinterTypes() []string {
	types := make([]string, 0, len(fingerprintRegistry))
	for k := range fingerprintRegistry {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

func init() {
	RegisterFingerprinter(GitHubFingerprintType, sha256Base64)
	RegisterFingerprinter(MagicTokenFingerprintType, sha256Base64)
}

func sha256Base64(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return base64.StdEncoding.EncodeToString(hash[:])
}

package middleware

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/google/magic-github-proxy/internal/api/presenter"
)

const AdminRole = "admin"

// AdminClaims are carried by admin session tokens.
type AdminClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// AdminAuth checks for an HS256 session token signed with signingKey that carries the admin role.
// Without a signing key every request is rejected.
// TODO(future): replace the shared signing key with per-operator credentials.
func AdminAuth(signingKey []byte) func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(signingKey) == 0 {
				presenter.Error(w, r, "admin api is disabled", http.StatusNotFound)
				return
			}

			tokenStr := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if tokenStr == "" {
				presenter.Error(w, r, "login required", http.StatusUnauthorized)
				return
			}

			claims := &AdminClaims{}
			_, err := jwt.ParseWithClaims(tokenStr, claims,
				func(*jwt.Token) (any, error) {
					return signingKey, nil
				},
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
				jwt.WithExpirationRequired(),
			)
			if err != nil {
				presenter.Error(w, r, "invalid session token", http.StatusUnauthorized)
				return
			}

			if !slices.Contains(claims.Roles, AdminRole) {
				presenter.Error(w, r, "insufficient privileges", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IssueAdminToken signs an admin session token for subject, valid for ttl.
func IssueAdminToken(signingKey []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Roles: []string{AdminRole},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
}

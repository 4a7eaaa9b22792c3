// Package magictoken creates and decodes magic tokens: signed JWTs carrying an
// encrypted upstream credential together with the scopes or inline permissions
// it may be used for.
package magictoken

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/keys"
)

// DefaultLifetime is the validity period of a newly created token.
const DefaultLifetime = 5 * 365 * 24 * time.Hour

// Claims is the payload of a magic token.
type Claims struct {
	// Token is the base64 encoded, RSA-OAEP encrypted upstream credential.
	Token   string   `json:"token"`
	Scopes  []string `json:"scopes,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
	jwt.RegisteredClaims
}

type Codec struct {
	keys     *keys.Keys
	now      func() time.Time
	lifetime time.Duration
}

type Option func(*Codec)

// WithClock replaces the clock used for issuing and verifying tokens.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func WithLifetime(lifetime time.Duration) Option {
	return func(c *Codec) {
		c.lifetime = lifetime
	}
}

func New(k *keys.Keys, opts ...Option) *Codec {
	c := &Codec{
		keys:     k,
		now:      time.Now,
		lifetime: DefaultLifetime,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create encrypts credential with the public key and signs a token granting either
// the named scopes or the inline allowed permissions.
func (c *Codec) Create(credential string, scopes, allowed []string) (string, error) {
	if len(scopes) > 0 && len(allowed) > 0 {
		return "", core.ErrConflictingGrant
	}

	// only the private key must be able to recover the credential
	encrypted, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, c.keys.PublicKey, []byte(credential), nil)
	if err != nil {
		return "", fmt.Errorf("encrypting credential: %w", err)
	}

	now := c.now()
	claims := Claims{
		Token:   base64.StdEncoding.EncodeToString(encrypted),
		Scopes:  scopes,
		Allowed: allowed,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = c.keys.KeyID()

	signed, err := token.SignedString(c.keys.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of token and decrypts the credential.
// Scope names are not checked against the registry here.
func (c *Codec) Decode(token string) (*core.DecodeResult, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) {
			return c.keys.PublicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidToken, err)
	}

	encrypted, err := base64.StdEncoding.DecodeString(claims.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrDecryption, err)
	}
	credential, err := rsa.DecryptOAEP(sha256.New(), nil, c.keys.PrivateKey, encrypted, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrDecryption, err)
	}

	result := &core.DecodeResult{
		UpstreamCredential: string(credential),
		Scopes:             claims.Scopes,
		Allowed:            claims.Allowed,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}

// KeyID is the id of the key tokens are signed with.
func (c *Codec) KeyID() string {
	return c.keys.KeyID()
}

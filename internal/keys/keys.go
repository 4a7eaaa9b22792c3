// Package keys holds the RSA key pair and certificate used to sign, verify,
// encrypt and decrypt magic tokens.
package keys

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ErrIncompleteKeyMaterial is returned by LoadOrGenerate when only some of the key files exist.
var ErrIncompleteKeyMaterial = errors.New("incomplete key material")

// Keys is loaded once at startup and never mutated afterwards.
type Keys struct {
	// PrivateKey decrypts credentials and signs tokens.
	PrivateKey *rsa.PrivateKey

	// PublicKey encrypts credentials and verifies tokens. It is taken from the certificate.
	PublicKey *rsa.PublicKey

	Certificate    *x509.Certificate
	CertificatePEM []byte

	keyID string
}

// Paths are the locations of the key material on disk.
type Paths struct {
	PrivateKey  string
	PublicKey   string
	Certificate string
}

// Load reads the PEM encoded private key and X.509 certificate.
func Load(privateKeyFile, certificateFile string) (*Keys, error) {
	privateKeyPEM, err := os.ReadFile(privateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	certificatePEM, err := os.ReadFile(certificateFile)
	if err != nil {
		return nil, fmt.Errorf("reading certificate: %w", err)
	}
	return Parse(privateKeyPEM, certificatePEM)
}

// Parse builds Keys from PEM encoded key material.
func Parse(privateKeyPEM, certificatePEM []byte) (*Keys, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	block, _ := pem.Decode(certificatePEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("parsing certificate: no PEM certificate block found")
	}
	certificate, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}

	publicKey, ok := certificate.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate holds a %T, expected an RSA public key", certificate.PublicKey)
	}
	if !privateKey.PublicKey.Equal(publicKey) {
		return nil, errors.New("certificate does not belong to the private key")
	}

	jwk := jose.JSONWebKey{Key: publicKey}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("calculating key thumbprint: %w", err)
	}

	return &Keys{
		PrivateKey:     privateKey,
		PublicKey:      publicKey,
		Certificate:    certificate,
		CertificatePEM: certificatePEM,
		keyID:          base64.RawURLEncoding.EncodeToString(thumbprint),
	}, nil
}

// LoadOrGenerate loads the key material and generates it first if none of it exists.
// An existing private key is never overwritten: if only one of the private key and
// the certificate exists, ErrIncompleteKeyMaterial is returned.
func LoadOrGenerate(paths Paths, publicAccess string) (*Keys, error) {
	k, err := Load(paths.PrivateKey, paths.Certificate)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, path := range []string{paths.PrivateKey, paths.Certificate} {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("%w: '%s' exists but %w", ErrIncompleteKeyMaterial, path, err)
		}
	}

	log.Warn().
		Str("private_key", paths.PrivateKey).
		Str("certificate", paths.Certificate).
		Msg("key material not found, generating a new key pair")

	if err := Generate(paths, publicAccess); err != nil {
		return nil, fmt.Errorf("generating keys: %w", err)
	}
	return Load(paths.PrivateKey, paths.Certificate)
}

// KeyID is the RFC 7638 thumbprint of the public key.
func (k *Keys) KeyID() string {
	return k.keyID
}

// JWKS returns the key set that verifies tokens issued with these keys.
func (k *Keys) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:          k.PublicKey,
				KeyID:        k.keyID,
				Algorithm:    string(jose.RS256),
				Use:          "sig",
				Certificates: []*x509.Certificate{k.Certificate},
			},
		},
	}
}

package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	keyBits = 2048

	// CertificateValidity bounds how long tokens stay decodable across a key rotation.
	CertificateValidity = 5 * 365 * 24 * time.Hour
)

// Generate creates a new RSA key pair and a self-signed certificate for the
// hostname of publicAccess and writes them to paths.
func Generate(paths Paths, publicAccess string) error {
	u, err := url.Parse(publicAccess)
	if err != nil {
		return fmt.Errorf("parsing public access url '%s': %w", publicAccess, err)
	}
	hostname := u.Hostname()
	if hostname == "" {
		return fmt.Errorf("url %s does not seem to have a hostname", publicAccess)
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return fmt.Errorf("generating rsa key: %w", err)
	}

	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	publicKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("marshalling public key: %w", err)
	}
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyDER,
	})

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generating serial number: %w", err)
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: hostname},
		NotBefore:             now,
		NotAfter:              now.Add(CertificateValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}
	certificateDER, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("creating certificate: %w", err)
	}
	certificatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certificateDER,
	})

	if err := writeFile(paths.PrivateKey, privateKeyPEM, 0600); err != nil {
		return err
	}
	if paths.PublicKey != "" {
		if err := writeFile(paths.PublicKey, publicKeyPEM, 0644); err != nil {
			return err
		}
	}
	return writeFile(paths.Certificate, certificatePEM, 0644)
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory for '%s': %w", path, err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("writing '%s': %w", path, err)
	}
	return nil
}

package backend

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

const (
	certFileName = "server.crt"
	keyFileName  = "server.key"

	certLifetime = 2 * 365 * 24 * time.Hour
)

// CertsDir holds the self-signed certificate for ssl sites.
func CertsDir(site *model.Site) string {
	return filepath.Join(site.Path, "certs")
}

// CertPath is the PEM certificate for the site's TLS terminator.
func CertPath(site *model.Site) string {
	return filepath.Join(CertsDir(site), certFileName)
}

// KeyPath is the PEM private key matching CertPath.
func KeyPath(site *model.Site) string {
	return filepath.Join(CertsDir(site), keyFileName)
}

// EnsureSelfSignedCert generates a certificate for the site's domain and
// localhost if one does not exist yet. Browsers will warn on it; local
// development accepts that in exchange for zero setup.
func EnsureSelfSignedCert(site *model.Site) error {
	if _, err := os.Stat(CertPath(site)); err == nil {
		if _, err := os.Stat(KeyPath(site)); err == nil {
			return nil
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return model.Wrap(model.KindProvision, err, "generate tls key for %s", site.Name)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return model.Wrap(model.KindProvision, err, "generate tls serial for %s", site.Name)
	}

	names := []string{"localhost"}
	if site.Domain != "" {
		names = append(names, site.Domain)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: names[len(names)-1], Organization: []string{"pressbox"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certLifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              names,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return model.Wrap(model.KindProvision, err, "create tls certificate for %s", site.Name)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return model.Wrap(model.KindProvision, err, "encode tls key for %s", site.Name)
	}

	if err := os.MkdirAll(CertsDir(site), 0o755); err != nil {
		return model.Wrap(model.KindProvision, err, "create certs directory for %s", site.Name)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(CertPath(site), certPEM, 0o644); err != nil {
		return fmt.Errorf("write tls certificate: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(KeyPath(site), keyPEM, 0o600); err != nil {
		return fmt.Errorf("write tls key: %w", err)
	}
	return nil
}

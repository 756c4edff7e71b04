package registry

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestCert writes a self-signed certificate and key pair into dir and
// returns their paths.
func writeTestCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "registry-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "cert.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))

	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyFile = filepath.Join(dir, "key.pem")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))

	return certFile, keyFile
}

func TestClientTLSConfigDisabled(t *testing.T) {
	cfg, err := clientTLSConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	cfg, err = clientTLSConfig(&TLSConfig{Enabled: false, CertFile: "x"})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestClientTLSConfigRequiresAllPaths(t *testing.T) {
	_, err := clientTLSConfig(&TLSConfig{
		Enabled:  true,
		CertFile: "/tmp/cert.pem",
		KeyFile:  "/tmp/key.pem",
	})
	require.Error(t, err)
}

func TestClientTLSConfigMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := clientTLSConfig(&TLSConfig{
		Enabled:  true,
		CertFile: filepath.Join(dir, "missing-cert.pem"),
		KeyFile:  filepath.Join(dir, "missing-key.pem"),
		CAFile:   filepath.Join(dir, "missing-ca.pem"),
	})
	require.Error(t, err)
}

func TestClientTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCert(t, dir)

	cfg, err := clientTLSConfig(&TLSConfig{
		Enabled:  true,
		CertFile: certFile,
		KeyFile:  keyFile,
		CAFile:   certFile, // self-signed, cert doubles as CA
	})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Len(t, cfg.Certificates, 1)
	assert.NotNil(t, cfg.RootCAs)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}

func TestBuildKey(t *testing.T) {
	c := &Client{namespace: "estate"}
	key := c.buildKey("deal-2024-081", "session-1")
	assert.Equal(t, "/estate/deals/deal-2024-081/session-1", key)
}

func TestNewClientRequiresEndpoints(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

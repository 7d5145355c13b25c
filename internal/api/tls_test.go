package api

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

	"github.com/AaronLay10/FlowEngine/internal/config"
)

// writeCert writes a self-signed certificate and key into dir.
func writeCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600))
	return certFile, keyFile
}

func TestLoadTLSConfigDisabled(t *testing.T) {
	for _, cfg := range []config.ServerConfig{
		{},
		{TLSCert: "/path/to/cert.pem"},
		{TLSKey: "/path/to/key.pem"},
	} {
		tc, err := LoadTLSConfig(cfg)
		assert.NoError(t, err)
		assert.Nil(t, tc)
	}
}

func TestLoadTLSConfigInvalidFiles(t *testing.T) {
	_, err := LoadTLSConfig(config.ServerConfig{TLSCert: "/nonexistent/cert.pem", TLSKey: "/nonexistent/key.pem"})
	assert.ErrorContains(t, err, "load TLS certificate")
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key := writeCert(t, t.TempDir())
	tc, err := LoadTLSConfig(config.ServerConfig{TLSCert: cert, TLSKey: key})
	require.NoError(t, err)
	require.NotNil(t, tc)
	assert.Len(t, tc.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), tc.MinVersion)
}

package tls

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
)

// writeCerts creates a CA and a leaf certificate signed by it and returns
// the paths of the leaf cert, leaf key and CA cert.
func writeCerts(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	dir := t.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate CA key: %v", err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "geostorm-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create CA cert: %v", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate leaf key: %v", err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parse CA cert: %v", err)
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, caCert, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create leaf cert: %v", err)
	}
	leafKeyDER, err := x509.MarshalECPrivateKey(leafKey)
	if err != nil {
		t.Fatalf("marshal leaf key: %v", err)
	}

	certFile = filepath.Join(dir, "tls.crt")
	keyFile = filepath.Join(dir, "tls.key")
	caFile = filepath.Join(dir, "ca.crt")
	writePEM(t, certFile, "CERTIFICATE", leafDER)
	writePEM(t, keyFile, "EC PRIVATE KEY", leafKeyDER)
	writePEM(t, caFile, "CERTIFICATE", caDER)
	return certFile, keyFile, caFile
}

func writePEM(t *testing.T, path, kind string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: kind, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestConfig_Validate(t *testing.T) {
	certFile, keyFile, caFile := writeCerts(t)

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"enabled with files", Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: caFile}, false},
		{"missing ca path", Config{Enabled: true, CertFile: certFile, KeyFile: keyFile}, true},
		{"nonexistent file", Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: "/nonexistent/ca.crt"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewServerTLSConfig(t *testing.T) {
	certFile, keyFile, caFile := writeCerts(t)

	cfg, err := NewServerTLSConfig(certFile, keyFile, caFile)
	if err != nil {
		t.Fatalf("NewServerTLSConfig() error = %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS 1.3", cfg.MinVersion)
	}
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", cfg.ClientAuth)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("len(Certificates) = %d, want 1", len(cfg.Certificates))
	}
}

func TestNewClientTLSConfig(t *testing.T) {
	certFile, keyFile, caFile := writeCerts(t)

	cfg, err := NewClientTLSConfig(certFile, keyFile, caFile)
	if err != nil {
		t.Fatalf("NewClientTLSConfig() error = %v", err)
	}
	if cfg.RootCAs == nil {
		t.Error("RootCAs must be set")
	}
}

func TestNewTLSConfig_BadCA(t *testing.T) {
	certFile, keyFile, _ := writeCerts(t)
	badCA := filepath.Join(t.TempDir(), "ca.crt")
	if err := os.WriteFile(badCA, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewServerTLSConfig(certFile, keyFile, badCA); err == nil {
		t.Error("NewServerTLSConfig() with garbage CA should fail")
	}
	if _, err := NewClientTLSConfig(certFile, keyFile, badCA); err == nil {
		t.Error("NewClientTLSConfig() with garbage CA should fail")
	}
}

func TestServerCredentials(t *testing.T) {
	creds, err := ServerCredentials(Config{})
	if err != nil || creds != nil {
		t.Errorf("ServerCredentials(disabled) = %v, %v; want nil, nil", creds, err)
	}

	certFile, keyFile, caFile := writeCerts(t)
	creds, err = ServerCredentials(Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: caFile})
	if err != nil {
		t.Fatalf("ServerCredentials() error = %v", err)
	}
	if got := creds.Info().SecurityProtocol; got != "tls" {
		t.Errorf("SecurityProtocol = %q, want tls", got)
	}
}

func TestClientCredentials(t *testing.T) {
	creds, err := ClientCredentials(Config{})
	if err != nil {
		t.Fatalf("ClientCredentials(disabled) error = %v", err)
	}
	if got := creds.Info().SecurityProtocol; got != "insecure" {
		t.Errorf("SecurityProtocol = %q, want insecure", got)
	}

	certFile, keyFile, caFile := writeCerts(t)
	creds, err = ClientCredentials(Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: caFile})
	if err != nil {
		t.Fatalf("ClientCredentials() error = %v", err)
	}
	if got := creds.Info().SecurityProtocol; got != "tls" {
		t.Errorf("SecurityProtocol = %q, want tls", got)
	}

	if _, err := ClientCredentials(Config{Enabled: true}); err == nil {
		t.Error("ClientCredentials() with TLS enabled and no files should fail")
	}
}

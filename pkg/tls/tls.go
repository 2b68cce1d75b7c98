// Package tls builds mutual TLS configurations for the geostorm HTTP and gRPC
// listeners and for outbound calls to remote model services.
//
// All configurations enforce TLS 1.3 and verify the peer against a private CA.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Config holds TLS certificate file paths for client or server configuration.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
	CAFile   string `yaml:"caFile"`
}

// Validate returns an error if TLS is enabled but a certificate file is
// missing or unreadable.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validateCertFiles(c.CertFile, c.KeyFile, c.CAFile)
}

// NewServerTLSConfig creates a server configuration that presents certFile
// and requires client certificates signed by caFile.
func NewServerTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	if err := validateCertFiles(certFile, keyFile, caFile); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	pool, err := loadCAPool(caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// NewClientTLSConfig creates a client configuration that presents certFile
// and verifies the server against caFile.
func NewClientTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	if err := validateCertFiles(certFile, keyFile, caFile); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}

	pool, err := loadCAPool(caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ServerCredentials returns gRPC transport credentials for c, or nil when TLS
// is disabled.
func ServerCredentials(c Config) (credentials.TransportCredentials, error) {
	if !c.Enabled {
		return nil, nil
	}
	cfg, err := NewServerTLSConfig(c.CertFile, c.KeyFile, c.CAFile)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(cfg), nil
}

// ClientCredentials returns gRPC transport credentials for dialing with c,
// or plaintext credentials when TLS is disabled.
func ClientCredentials(c Config) (credentials.TransportCredentials, error) {
	if !c.Enabled {
		return insecure.NewCredentials(), nil
	}
	cfg, err := NewClientTLSConfig(c.CertFile, c.KeyFile, c.CAFile)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(cfg), nil
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}
	return pool, nil
}

func validateCertFiles(certFile, keyFile, caFile string) error {
	if certFile == "" {
		return errors.New("certificate file path cannot be empty")
	}
	if keyFile == "" {
		return errors.New("key file path cannot be empty")
	}
	if caFile == "" {
		return errors.New("CA certificate file path cannot be empty")
	}

	for _, path := range []string{certFile, keyFile, caFile} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("certificate file %q: %w", path, err)
		}
	}

	return nil
}

package httpx

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	geotls "github.com/HatiCode/geostorm/pkg/tls"
)

// NewClient creates an HTTP client for calling remote model services. When
// tlsCfg.Enabled is set the client authenticates with mTLS.
func NewClient(tlsCfg geotls.Config, timeout time.Duration) (*http.Client, error) {
	var cryptoTLSConfig *tls.Config
	var err error

	if tlsCfg.Enabled {
		cryptoTLSConfig, err = geotls.NewClientTLSConfig(tlsCfg.CertFile, tlsCfg.KeyFile, tlsCfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("create TLS config: %w", err)
		}
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig:     cryptoTLSConfig,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

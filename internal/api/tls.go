package api

import (
	"crypto/tls"
	"fmt"

	"github.com/AaronLay10/FlowEngine/internal/config"
)

// LoadTLSConfig loads a tls.Config from the configured cert and key files.
// It returns nil, nil when TLS is not configured.
func LoadTLSConfig(cfg config.ServerConfig) (*tls.Config, error) {
	if !cfg.TLSEnabled() {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

package grpc

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/compozy/remotequery/pkg/config"
)

const (
	CredentialsInsecure = "insecure"
	CredentialsTLS      = "tls"
)

// TransportCredentials builds channel credentials: plaintext, TLS with an
// optional CA bundle, or mutual TLS when a client certificate is configured.
func TransportCredentials(cfg config.CredentialsConfig) (credentials.TransportCredentials, error) {
	switch cfg.Type {
	case "", CredentialsInsecure:
		return insecure.NewCredentials(), nil
	case CredentialsTLS:
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.CAPath != "" {
			pem, err := os.ReadFile(cfg.CAPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", cfg.CAPath)
			}
			tlsCfg.RootCAs = pool
		}
		if cfg.CertPath != "" || cfg.KeyPath != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
		return credentials.NewTLS(tlsCfg), nil
	default:
		return nil, fmt.Errorf("unsupported credentials type %q", cfg.Type)
	}
}

// Package tlsconfig loads TLS material for broker connections.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Client returns a client TLS config, or nil when no paths are set.
// caPath adds a root pool; certPath and keyPath add a client
// certificate and must be given together.
func Client(caPath, certPath, keyPath string) (*tls.Config, error) {
	if caPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}
	config := &tls.Config{MinVersion: tls.VersionTLS12}
	if caPath != "" {
		pool, err := loadPool(caPath)
		if err != nil {
			return nil, err
		}
		config.RootCAs = pool
	}
	if err := addCertificate(config, certPath, keyPath); err != nil {
		return nil, err
	}
	return config, nil
}

// Server returns a listener TLS config, or nil when no paths are set.
// A server needs a certificate; caPath verifies client certificates
// when they are presented.
func Server(caPath, certPath, keyPath string) (*tls.Config, error) {
	if caPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}
	if certPath == "" || keyPath == "" {
		return nil, errors.New("both tls cert and key are required")
	}
	config := &tls.Config{MinVersion: tls.VersionTLS12}
	if err := addCertificate(config, certPath, keyPath); err != nil {
		return nil, err
	}
	if caPath != "" {
		pool, err := loadPool(caPath)
		if err != nil {
			return nil, err
		}
		config.ClientCAs = pool
		config.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return config, nil
}

func loadPool(caPath string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("failed to parse CA bundle %s", caPath)
	}
	return pool, nil
}

func addCertificate(config *tls.Config, certPath, keyPath string) error {
	if certPath == "" && keyPath == "" {
		return nil
	}
	if certPath == "" || keyPath == "" {
		return errors.New("both tls cert and key are required")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return err
	}
	config.Certificates = []tls.Certificate{cert}
	return nil
}

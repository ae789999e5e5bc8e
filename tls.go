package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// ALPNProtocol is the single ALPN value mandatory on both sides of the
// media connection. A mismatched ALPN aborts the QUIC handshake.
const ALPNProtocol = "vox-media/1"

// DefaultIdleTimeout and DefaultDatagramReceiveBuffer are the default
// transport knobs; callers of Connect may override them per connection.
const (
	DefaultIdleTimeout           = 30 * time.Second
	DefaultDatagramReceiveBuffer = 65535
)

// generateSelfSignedTLS creates a fresh ECDSA P-256 key and a self-signed
// certificate for name (falling back to "localhost"), and returns a
// server-side tls.Config with ALPN already set plus the raw certificate DER
// so a client can pin it.
func generateSelfSignedTLS(validity time.Duration, name string) (*tls.Config, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("[tls] generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("[tls] generate serial: %w", err)
	}

	cn := "localhost"
	sans := []string{"localhost"}
	if name != "" && name != "localhost" {
		cn = name
		sans = append(sans, name)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              sans,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("[tls] create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, fmt.Errorf("[tls] parse certificate: %w", err)
	}

	tlsCert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        cert,
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{ALPNProtocol},
		MinVersion:   tls.VersionTLS13,
	}

	return cfg, certDER, nil
}

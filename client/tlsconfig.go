package client

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// alpnProtocol mirrors the server's fixed ALPN value (see the root-level tls.go).
const alpnProtocol = "vox-media/1"

// buildClientTLSConfig returns the client-side crypto config for a QUIC
// connection. When certDER is non-empty the connection pins that exact
// certificate (self-signed server mode); otherwise the system root pool is
// used (CA-signed server mode).
func buildClientTLSConfig(serverName string, certDER []byte) *tls.Config {
	if len(certDER) == 0 {
		return &tls.Config{
			ServerName: serverName,
			NextProtos: []string{alpnProtocol},
			MinVersion: tls.VersionTLS13,
		}
	}

	return &tls.Config{
		ServerName:         serverName,
		NextProtos:         []string{alpnProtocol},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("pinned cert verification: server presented no certificate")
			}
			if !bytes.Equal(rawCerts[0], certDER) {
				return fmt.Errorf("pinned cert verification: server certificate does not match pinned DER")
			}
			return nil
		},
	}
}

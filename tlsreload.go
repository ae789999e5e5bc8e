package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// CertReloadInterval is how often the domain-mode resolver reloads its PEM
// files from disk.
const CertReloadInterval = time.Hour

// reloadingCertResolver serves the current certificate for every TLS
// handshake and supports hot-reloading from disk without dropping active
// QUIC sessions: only new handshakes observe a reload.
type reloadingCertResolver struct {
	current  atomic.Pointer[tls.Certificate]
	certPath string
	keyPath  string
}

func loadCertifiedKey(certPath, keyPath string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	return &cert, nil
}

// newReloadingCertResolver loads the initial certificate/key pair from disk.
func newReloadingCertResolver(certPath, keyPath string) (*reloadingCertResolver, error) {
	cert, err := loadCertifiedKey(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	r := &reloadingCertResolver{certPath: certPath, keyPath: keyPath}
	r.current.Store(cert)
	return r, nil
}

// reload re-reads the PEM files from disk and swaps them in atomically. On
// failure the previously loaded credentials remain in effect.
func (r *reloadingCertResolver) reload() error {
	cert, err := loadCertifiedKey(r.certPath, r.keyPath)
	if err != nil {
		return err
	}
	r.current.Store(cert)
	return nil
}

func (r *reloadingCertResolver) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.current.Load(), nil
}

// buildDomainTLSConfig returns a server tls.Config backed by resolver's
// hot-reloadable certificate, with ALPN fixed to vox-media/1.
func buildDomainTLSConfig(resolver *reloadingCertResolver) *tls.Config {
	return &tls.Config{
		GetCertificate: resolver.getCertificate,
		NextProtos:     []string{ALPNProtocol},
		MinVersion:     tls.VersionTLS13,
	}
}

// spawnCertWatcher reloads the resolver's credentials from disk once per
// CertReloadInterval until ctx is canceled. A reload failure is logged and
// the previous credentials are kept.
func spawnCertWatcher(ctx context.Context, resolver *reloadingCertResolver) {
	ticker := time.NewTicker(CertReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := resolver.reload(); err != nil {
				log.Printf("[tls] cert reload failed, keeping previous credentials: %v", err)
				continue
			}
			log.Printf("[tls] certificate hot-reloaded from disk")
		}
	}
}

package main

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"time"
)

func main() {
	// Check for CLI subcommands before parsing server flags.
	if len(os.Args) > 1 {
		cliDB := "vox-audit.db"
		cliAPI := "http://127.0.0.1:8080"
		if RunCLI(os.Args[1:], cliDB, cliAPI) {
			return
		}
	}

	addr := flag.String("addr", ":4433", "QUIC listen address")
	apiAddr := flag.String("api-addr", ":8080", "admin REST API listen address (empty to disable)")
	dbPath := flag.String("db", "vox-audit.db", "audit log SQLite database path")
	certValidity := flag.Duration("cert-validity", 24*time.Hour, "self-signed TLS certificate validity")
	domainCert := flag.String("tls-cert", "", "PEM certificate path for domain TLS mode (enables hot reload)")
	domainKey := flag.String("tls-key", "", "PEM private key path for domain TLS mode")
	metricsInterval := flag.Duration("metrics-interval", 5*time.Second, "forwarding stats log interval")
	flag.Parse()

	audit, err := OpenAuditLog(*dbPath)
	if err != nil {
		log.Fatalf("[audit] %v", err)
	}
	defer audit.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tlsConfig, err := buildTLSConfig(ctx, *addr, *certValidity, *domainCert, *domainKey)
	if err != nil {
		log.Fatalf("[server] %v", err)
	}

	sfu := NewSFU(*addr, tlsConfig, audit)
	if err := sfu.Start(ctx); err != nil {
		log.Fatalf("[server] %v", err)
	}
	defer sfu.Stop()
	log.Printf("[server] vox-sfu %s listening on %s", Version, sfu.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[server] shutting down...")
		cancel()
	}()

	go RunMetrics(ctx, sfu, *metricsInterval)

	if *apiAddr != "" {
		api := NewAdminAPI(sfu)
		go func() {
			if err := api.Run(ctx, *apiAddr); err != nil {
				log.Printf("[adminapi] %v", err)
			}
		}()
		log.Printf("[adminapi] listening on %s", *apiAddr)
	}

	<-ctx.Done()
}

// buildTLSConfig picks self-signed or domain/hot-reload TLS mode depending
// on whether -tls-cert/-tls-key were supplied.
func buildTLSConfig(ctx context.Context, addr string, certValidity time.Duration, certPath, keyPath string) (*tls.Config, error) {
	if certPath != "" && keyPath != "" {
		resolver, err := newReloadingCertResolver(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("domain TLS: %w", err)
		}
		go spawnCertWatcher(ctx, resolver)
		log.Printf("[tls] domain mode: cert=%s key=%s reload=%s", certPath, keyPath, CertReloadInterval)
		return buildDomainTLSConfig(resolver), nil
	}

	hostname := ""
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		hostname = host
	}
	tlsConfig, certDER, err := generateSelfSignedTLS(certValidity, hostname)
	if err != nil {
		return nil, fmt.Errorf("self-signed TLS: %w", err)
	}
	fingerprint := sha256.Sum256(certDER)
	log.Printf("[tls] self-signed certificate fingerprint: %x", fingerprint)
	return tlsConfig, nil
}

package client

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const defaultServerPort = "4433"

// resolvedAddr is the outcome of resolving a server address string: the
// concrete socket address to dial plus the TLS server name to present in
// SNI / verify against a pinned certificate.
type resolvedAddr struct {
	DialAddr   string // host:port to pass to the QUIC dialer
	ServerName string // TLS server name
}

// resolveServerAddr accepts "quic://host:port" or bare "host:port". A
// bare-IP host is used directly as both the dial target and SNI
// (self-signed/pinned setups); a DNS name is looked up
// and the first resolved address becomes the dial target while the name
// itself remains the SNI (CA-signed setups).
func resolveServerAddr(ctx context.Context, raw string) (resolvedAddr, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return resolvedAddr{}, fmt.Errorf("server address is required")
	}

	if strings.HasPrefix(s, "quic://") {
		s = strings.TrimPrefix(s, "quic://")
	} else if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return resolvedAddr{}, fmt.Errorf("invalid server address: %w", err)
		}
		if u.Host == "" {
			return resolvedAddr{}, fmt.Errorf("invalid server address: missing host")
		}
		s = u.Host
	}

	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return resolvedAddr{}, fmt.Errorf("invalid server address: missing host")
	}

	host := s
	port := defaultServerPort
	if h, p, err := net.SplitHostPort(s); err == nil {
		host, port = h, p
	} else if ip := net.ParseIP(s); ip != nil {
		host = s
	} else if strings.Contains(s, ":") {
		return resolvedAddr{}, fmt.Errorf("invalid server address: %q", raw)
	}

	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 1 || portNum > 65535 {
		return resolvedAddr{}, fmt.Errorf("invalid server port: %q", port)
	}

	if ip := net.ParseIP(host); ip != nil {
		return resolvedAddr{
			DialAddr:   net.JoinHostPort(host, strconv.Itoa(portNum)),
			ServerName: host,
		}, nil
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return resolvedAddr{}, fmt.Errorf("resolve %q: %w", host, err)
	}
	if len(ips) == 0 {
		return resolvedAddr{}, fmt.Errorf("resolve %q: no addresses found", host)
	}

	return resolvedAddr{
		DialAddr:   net.JoinHostPort(ips[0].String(), strconv.Itoa(portNum)),
		ServerName: host,
	}, nil
}

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/quic-go/quic-go"
)

func secondsToDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

// quicConn is the subset of *quic.Conn the endpoint depends on; defined as
// an interface so tests can substitute an in-memory fake.
type quicConn interface {
	ReceiveDatagram(ctx context.Context) ([]byte, error)
	SendDatagram(data []byte) error
	CloseWithError(code quic.ApplicationErrorCode, msg string) error
	Context() context.Context
}

// Endpoint is the QUIC listener that admits media connections: it runs one
// accept loop and one goroutine per live connection, so that admission of
// one client never blocks another.
type Endpoint struct {
	registry *Registry
	listener *quic.Listener

	totalDatagrams atomic.Uint64
	totalBytes     atomic.Uint64
	skippedSends   atomic.Uint64
}

// Stats returns running totals of datagrams forwarded, bytes forwarded, and
// fan-out sends skipped by an open circuit breaker.
func (e *Endpoint) Stats() (datagrams, bytes, skipped uint64) {
	return e.totalDatagrams.Load(), e.totalBytes.Load(), e.skippedSends.Load()
}

// quicTransportConfig returns the quic.Config applied to the listener:
// datagrams enabled, default idle timeout. The datagram
// receive buffer size is accepted for parity with the client's connect
// parameters; quic-go sizes its internal datagram queues itself and has no
// corresponding knob to forward it to.
func quicTransportConfig(idleTimeoutSecs, datagramBuf int) *quic.Config {
	cfg := &quic.Config{EnableDatagrams: true}
	if idleTimeoutSecs > 0 {
		cfg.MaxIdleTimeout = secondsToDuration(idleTimeoutSecs)
	} else {
		cfg.MaxIdleTimeout = DefaultIdleTimeout
	}
	_ = datagramBuf
	return cfg
}

// NewEndpoint binds a QUIC listener at bindAddr using tlsConfig.
func NewEndpoint(bindAddr string, tlsConfig *tls.Config, registry *Registry) (*Endpoint, error) {
	cfg := quicTransportConfig(int(DefaultIdleTimeout.Seconds()), DefaultDatagramReceiveBuffer)
	ln, err := quic.ListenAddr(bindAddr, tlsConfig, cfg)
	if err != nil {
		return nil, fmt.Errorf("[endpoint] bind %s: %w", bindAddr, err)
	}
	return &Endpoint{registry: registry, listener: ln}, nil
}

// Addr returns the listener's bound network address.
func (e *Endpoint) Addr() string {
	return e.listener.Addr().String()
}

// Run accepts connections until ctx is canceled or the listener closes.
// Each accepted connection is handled on its own goroutine.
func (e *Endpoint) Run(ctx context.Context) {
	log.Printf("[endpoint] listening on %s", e.Addr())
	for {
		conn, err := e.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("[endpoint] shutting down")
				return
			}
			log.Printf("[endpoint] accept failed: %v", err)
			return
		}
		go e.handleConnection(ctx, conn)
	}
}

// Close closes the underlying listener.
func (e *Endpoint) Close() error {
	return e.listener.Close()
}

// handleConnection runs one connection's lifecycle: first-datagram token
// authentication, then the forwarding loop until read error or
// cancellation.
func (e *Endpoint) handleConnection(ctx context.Context, conn quicConn) {
	tokenData, err := conn.ReceiveDatagram(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // canceled before first datagram: close silently
		}
		log.Printf("[endpoint] failed to read auth datagram: %v", err)
		return
	}

	if !utf8.Valid(tokenData) {
		log.Printf("[endpoint] invalid UTF-8 in auth token")
		_ = conn.CloseWithError(1, "invalid token")
		return
	}
	token := string(tokenData)

	roomID, userID, ok := e.registry.ResolveToken(token)
	if !ok {
		log.Printf("[endpoint] unknown media token")
		_ = conn.CloseWithError(1, "unknown token")
		return
	}

	e.registry.SetConnection(roomID, userID, conn)
	log.Printf("[endpoint] user %d authenticated in room %d via QUIC", userID, roomID)

	for {
		data, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			log.Printf("[endpoint] connection closed for user %d: %v", userID, err)
			break
		}
		e.forwardDatagram(data, roomID, userID)
		if ctx.Err() != nil {
			break
		}
	}

	e.registry.ClearConnection(roomID, userID)
}

// forwardDatagram parses data as a MediaHeader, checks it declares the
// authenticated (roomID, senderID), and fans it out to every other
// connected user of the room. Individual peer send failures are ignored.
func (e *Endpoint) forwardDatagram(data []byte, roomID, senderID uint32) {
	header, ok := ParseMediaHeader(data)
	if !ok {
		return // HeaderTooShort: drop silently
	}

	if header.RoomID != roomID || header.UserID != senderID {
		log.Printf("[endpoint] header mismatch: expected room=%d user=%d, got room=%d user=%d",
			roomID, senderID, header.RoomID, header.UserID)
		return
	}

	e.totalDatagrams.Add(1)
	e.totalBytes.Add(uint64(len(data)))

	targets := e.registry.snapshotPeers(roomID, senderID)
	defer releaseSnapshot(targets)

	for _, t := range targets {
		if t.health.shouldSkip() {
			e.skippedSends.Add(1)
			continue
		}
		if err := t.transport.SendDatagram(data); err != nil {
			n := t.health.recordFailure()
			if n == circuitBreakerThreshold {
				log.Printf("[endpoint] circuit breaker open for user %d — %d consecutive send failures", t.userID, n)
			}
			continue
		}
		if t.health.failures.Load() > 0 {
			if t.health.recordSuccess() {
				log.Printf("[endpoint] circuit breaker closed for user %d", t.userID)
			}
		}
	}
}

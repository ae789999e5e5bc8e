package client

import (
	"context"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

// session wraps the established QUIC connection for one media session.
type session struct {
	conn *quic.Conn
}

// dial resolves the server address, builds the pinned or CA-rooted client
// TLS config, opens a QUIC connection, and sends the token as the first
// datagram — the SFU's entire authentication handshake (see the root-level
// tls.go and endpoint.go).
func dial(ctx context.Context, p ConnectParams) (*session, error) {
	addr, err := resolveServerAddr(ctx, p.URL)
	if err != nil {
		return nil, fmt.Errorf("resolve address: %w", err)
	}

	tlsConfig := buildClientTLSConfig(addr.ServerName, p.CertDER)

	idleTimeout := time.Duration(p.IdleTimeoutSecs) * time.Second
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Second
	}
	bufSize := p.DatagramBufferSize
	if bufSize <= 0 {
		bufSize = 65535
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:          idleTimeout,
		EnableDatagrams:         true,
		MaxIncomingStreams:      0,
		MaxIncomingUniStreams:   0,
		InitialPacketSize:       uint16(min(bufSize, 1452)),
	}

	conn, err := quic.DialAddr(ctx, addr.DialAddr, tlsConfig, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr.DialAddr, err)
	}

	if err := conn.SendDatagram([]byte(p.Token)); err != nil {
		conn.CloseWithError(0, "send token failed")
		return nil, fmt.Errorf("send token: %w", err)
	}

	return &session{conn: conn}, nil
}

func (s *session) send(data []byte) error {
	return s.conn.SendDatagram(data)
}

func (s *session) receive(ctx context.Context) ([]byte, error) {
	return s.conn.ReceiveDatagram(ctx)
}

func (s *session) close() {
	_ = s.conn.CloseWithError(0, "client disconnect")
}

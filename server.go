package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
)

// SFU is the host-facing control surface: new(bind_addr), start, stop,
// add_room, remove_room, admit_user, remove_user, get_room_users.
// Lifecycle is idempotent: repeated Start is an error,
// repeated Stop is silent.
type SFU struct {
	bindAddr  string
	tlsConfig *tls.Config
	registry  *Registry

	mu       sync.Mutex
	endpoint *Endpoint
	cancel   context.CancelFunc
	running  bool
	done     chan struct{}
}

// NewSFU constructs an SFU bound to bindAddr, with the given TLS config and
// audit sink (nil disables auditing).
func NewSFU(bindAddr string, tlsConfig *tls.Config, audit AuditSink) *SFU {
	return &SFU{
		bindAddr:  bindAddr,
		tlsConfig: tlsConfig,
		registry:  NewRegistry(audit),
	}
}

// Start binds the QUIC listener and begins accepting connections in the
// background. It fails if the SFU is already running.
func (s *SFU) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("[sfu] already running")
	}

	ep, err := NewEndpoint(s.bindAddr, s.tlsConfig, s.registry)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.endpoint = ep
	s.cancel = cancel
	s.running = true
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ep.Run(runCtx)
	}()

	return nil
}

// Stop cancels the accept loop and waits for it to finish. Repeated Stop
// calls are silent no-ops.
func (s *SFU) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	ep := s.endpoint
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	_ = ep.Close()
	<-done
}

// AddRoom, RemoveRoom, AdmitUser, RemoveUser, and GetRoomUsers forward
// directly to the registry; see Registry for their exact semantics.
func (s *SFU) AddRoom(roomID uint32) { s.registry.AddRoom(roomID) }

func (s *SFU) RemoveRoom(roomID uint32) { s.registry.RemoveRoom(roomID) }

func (s *SFU) AdmitUser(roomID, userID uint32, token string) bool {
	return s.registry.AdmitUser(roomID, userID, token)
}

func (s *SFU) RemoveUser(roomID, userID uint32) { s.registry.RemoveUser(roomID, userID) }

func (s *SFU) GetRoomUsers(roomID uint32) ([]uint32, bool) {
	return s.registry.GetRoomUsers(roomID)
}

// Stats returns running totals of datagrams/bytes forwarded and fan-out
// sends skipped by an open circuit breaker. All zero before Start.
func (s *SFU) Stats() (datagrams, bytes, skipped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endpoint == nil {
		return 0, 0, 0
	}
	return s.endpoint.Stats()
}

// Addr returns the bound listener address; valid only while running.
func (s *SFU) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endpoint == nil {
		return ""
	}
	return s.endpoint.Addr()
}

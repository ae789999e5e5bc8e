package client

import (
	"context"
	"testing"
)

func TestResolveServerAddrBareIP(t *testing.T) {
	r, err := resolveServerAddr(context.Background(), "quic://127.0.0.1:4433")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.DialAddr != "127.0.0.1:4433" || r.ServerName != "127.0.0.1" {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestResolveServerAddrDefaultPort(t *testing.T) {
	r, err := resolveServerAddr(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.DialAddr != "127.0.0.1:4433" {
		t.Fatalf("expected default port 4433, got %s", r.DialAddr)
	}
}

func TestResolveServerAddrEmpty(t *testing.T) {
	if _, err := resolveServerAddr(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestResolveServerAddrInvalidPort(t *testing.T) {
	if _, err := resolveServerAddr(context.Background(), "127.0.0.1:notaport"); err == nil {
		t.Fatalf("expected error for invalid port")
	}
}

func TestResolveServerAddrDNSName(t *testing.T) {
	r, err := resolveServerAddr(context.Background(), "localhost:4433")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ServerName != "localhost" {
		t.Fatalf("expected SNI to remain the DNS name, got %s", r.ServerName)
	}
}

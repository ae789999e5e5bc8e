package main

import "sync/atomic"

// After circuitBreakerThreshold consecutive SendDatagram failures for one
// peer, the breaker opens and that peer is skipped in subsequent fan-out
// rounds without touching the registry — the peer's own read loop remains
// the sole authority over its teardown. Every circuitBreakerProbeInterval
// skipped sends, one datagram is let through to probe for recovery.
const (
	circuitBreakerThreshold     uint32 = 50 // ~1s of voice at 50fps
	circuitBreakerProbeInterval uint32 = 25
)

// sendHealth tracks per-peer fan-out send health. The zero value is a closed
// breaker (healthy).
type sendHealth struct {
	failures atomic.Uint32 // consecutive SendDatagram failures
	skips    atomic.Uint32 // skips since the breaker opened; paces probes
}

// shouldSkip reports whether the caller should skip sending to this peer
// this round.
func (h *sendHealth) shouldSkip() bool {
	if h.failures.Load() < circuitBreakerThreshold {
		return false
	}
	s := h.skips.Add(1)
	return s%circuitBreakerProbeInterval != 0
}

// recordFailure increments the consecutive-failure counter and returns the
// new value.
func (h *sendHealth) recordFailure() uint32 {
	return h.failures.Add(1)
}

// recordSuccess resets the breaker. It returns true if the breaker had been
// open (i.e. this send was a successful probe).
func (h *sendHealth) recordSuccess() bool {
	wasTripped := h.failures.Swap(0) >= circuitBreakerThreshold
	if wasTripped {
		h.skips.Store(0)
	}
	return wasTripped
}

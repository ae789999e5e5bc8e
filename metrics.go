package main

import (
	"context"
	"log"
	"time"
)

// RunMetrics logs forwarding stats every interval until ctx is canceled.
func RunMetrics(ctx context.Context, sfu *SFU, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastBytes uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			datagrams, bytes, skipped := sfu.Stats()
			if bytes < lastBytes {
				lastBytes = 0 // endpoint restarted; totals began again
			}
			rate := float64(bytes-lastBytes) / interval.Seconds() / 1024
			lastBytes = bytes
			if datagrams > 0 || skipped > 0 {
				log.Printf("[metrics] datagrams=%d bytes=%d skipped=%d (%.1f KB/s)",
					datagrams, bytes, skipped, rate)
			}
		}
	}
}

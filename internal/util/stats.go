package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide datagram counter.
var Stats = &stats{}

type stats struct {
	PacketsSent atomic.Int64 // datagrams written by any endpoint
	PacketsRecv atomic.Int64 // datagrams read by any endpoint
	BytesSent   atomic.Int64
	BytesRecv   atomic.Int64
	Timeouts    atomic.Int64 // receives that ended without a datagram
}

func (s *stats) AddSent(n int) {
	s.PacketsSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.PacketsRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddTimeout() { s.Timeouts.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	PacketsSent, PacketsRecv int64
	BytesSent, BytesRecv     int64
	Timeouts                 int64
}

func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		PacketsSent: s.PacketsSent.Load(),
		PacketsRecv: s.PacketsRecv.Load(),
		BytesSent:   s.BytesSent.Load(),
		BytesRecv:   s.BytesRecv.Load(),
		Timeouts:    s.Timeouts.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs datagram statistics
// every interval, skipping intervals without datagrams (polling loops time
// out constantly, so timeouts alone are not traffic). It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prev Snapshot
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				if cur.PacketsSent != prev.PacketsSent || cur.PacketsRecv != prev.PacketsRecv {
					pterm.DefaultLogger.Info(format("%s", formatStats(cur.Sub(prev), interval)))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sub returns the per-field difference s - o.
func (s Snapshot) Sub(o Snapshot) Snapshot {
	return Snapshot{
		PacketsSent: s.PacketsSent - o.PacketsSent,
		PacketsRecv: s.PacketsRecv - o.PacketsRecv,
		BytesSent:   s.BytesSent - o.BytesSent,
		BytesRecv:   s.BytesRecv - o.BytesRecv,
		Timeouts:    s.Timeouts - o.Timeouts,
	}
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a one-line summary of a stats delta over interval.
func formatStats(d Snapshot, interval time.Duration) string {
	secs := interval.Seconds()
	return fmt.Sprintf("Out: %3d pkt %s/s | In: %3d pkt %s/s | Timeouts: %2d",
		d.PacketsSent,
		formatBytes(float64(d.BytesSent)/secs),
		d.PacketsRecv,
		formatBytes(float64(d.BytesRecv)/secs),
		d.Timeouts,
	)
}

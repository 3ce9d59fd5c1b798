package session

import (
	"context"
	"log/slog"
	"time"
)

// StartIdleSweeper runs a background goroutine that periodically asks idle
// session actors to retire. Retired sessions keep their snapshot and are
// started again by the next event.
func StartIdleSweeper(ctx context.Context, m *Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Idle sweeper started", "interval", interval, "ttl", m.cfg.IdleTTL)

		for {
			select {
			case <-ticker.C:
				before := m.ActiveCount()
				m.sweepIdle()
				slog.Debug("Idle sweep requested", "actors", before)
			case <-ctx.Done():
				slog.Info("Idle sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

package core

// scheduler.go expires idle import sessions.
//
// Staged workbooks live in memory only, so sessions an operator abandoned
// are dropped once idle longer than the TTL. Sessions running a commit are
// never swept.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often StartSessionSweeper checks for idle sessions.
const DefaultSweepInterval = 5 * time.Minute

// StartSessionSweeper blocks, sweeping every interval until ctx is done.
// Run it in its own goroutine.
func (s *Service) StartSessionSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("session sweeper started", "interval", interval, "ttl", s.ttl)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				slog.Info("expired import sessions", "count", n)
			}
		}
	}
}

// Sweep removes sessions idle since before now minus the TTL and returns
// how many it removed.
func (s *Service) Sweep(now time.Time) int {
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		expired := !sess.running && sess.lastUsed.Before(cutoff)
		sess.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/xiaot623/blogpulse/internal/domain"
)

// RunStaleSessionSweeper ends sessions whose page stopped sending heartbeats
// without ever delivering a close, e.g. a killed browser tab.
func (s *Service) RunStaleSessionSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStaleSessions(ctx)
		}
	}
}

func (s *Service) sweepStaleSessions(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cutoff := s.now().Add(-s.config.StaleSessionTimeout)
	stale, err := s.store.ListStaleSessions(sweepCtx, cutoff, 100)
	if err != nil {
		slog.Warn("stale session sweep failed", "error", err)
		return
	}

	for _, session := range stale {
		// The session ended when it was last seen, not when the sweep noticed.
		if err := s.endSession(sweepCtx, session.SessionID, session.LastActivityAt, domain.EndReasonStale); err != nil {
			slog.Warn("failed to end stale session", "session_id", session.SessionID, "error", err)
			continue
		}
		slog.Info("ended stale session", "session_id", session.SessionID, "last_activity_at", session.LastActivityAt)
	}
}

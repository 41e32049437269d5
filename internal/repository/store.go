// Package store defines the session storage interface and its sqlite
// implementation.
package store

import (
	"context"
	"time"

	"github.com/xiaot623/blogpulse/internal/domain"
)

// Store defines the interface for session persistence.
type Store interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// TouchSession moves last_activity_at forward to at (never backward) and
	// counts the heartbeat. It reports false when the session is unknown or
	// already ended.
	TouchSession(ctx context.Context, sessionID string, at time.Time) (bool, error)

	// EndSession marks the session ended. It reports false when the session is
	// unknown or was already ended, so repeated calls are harmless.
	EndSession(ctx context.Context, sessionID string, endedAt time.Time, reason string) (bool, error)

	// ListStaleSessions returns open sessions whose last activity is older
	// than before.
	ListStaleSessions(ctx context.Context, before time.Time, limit int) ([]domain.Session, error)

	CountActiveSessions(ctx context.Context) (int, error)

	// SessionStats aggregates non-bot sessions started within the filter's
	// range, optionally restricted to one domain.
	SessionStats(ctx context.Context, filter domain.StatsFilter) (*domain.SessionStats, error)

	Close() error
}

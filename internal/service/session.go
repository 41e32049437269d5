package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/blogpulse/internal/domain"
	"github.com/xiaot623/blogpulse/internal/policy"
	"github.com/xiaot623/blogpulse/internal/useragent"
)

// RequestMeta carries request attributes the client does not send itself.
type RequestMeta struct {
	IPAddress  string
	DomainName string
}

// CreateSession admits and stores a new session.
func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest, meta RequestMeta) (*domain.Session, error) {
	info := useragent.Parse(req.UserAgent)

	decision, err := s.policyEngine.Evaluate(ctx, policy.Input{
		UserAgent:        req.UserAgent,
		Referrer:         req.Referrer,
		ScreenResolution: req.ScreenResolution,
		Language:         req.Language,
		IPAddress:        meta.IPAddress,
		DomainName:       meta.DomainName,
		DetectedBot:      info.IsBot,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate admission policy: %w", err)
	}
	if decision == policy.DecisionBlock {
		return nil, ErrSessionBlocked
	}

	now := s.now().UTC()
	session := &domain.Session{
		SessionID:        uuid.New().String(),
		UserAgent:        req.UserAgent,
		Referrer:         req.Referrer,
		ScreenResolution: req.ScreenResolution,
		Language:         req.Language,
		IPAddress:        meta.IPAddress,
		DomainName:       meta.DomainName,
		DeviceType:       info.DeviceType,
		Browser:          info.Browser,
		OS:               info.OS,
		IsBot:            decision == policy.DecisionBot,
		StartedAt:        now,
		LastActivityAt:   now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.publish(domain.LifecycleEventCreated, session)
	return session, nil
}

// UpdateActivity records a heartbeat. Timestamps from the future are clamped
// to the server clock.
func (s *Service) UpdateActivity(ctx context.Context, sessionID string, at time.Time) error {
	at = s.clamp(at)
	ok, err := s.store.TouchSession(ctx, sessionID, at)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}

	if s.publisher != nil {
		session, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			slog.Warn("failed to load session for feed", "session_id", sessionID, "error", err)
			return nil
		}
		s.publish(domain.LifecycleEventActivity, session)
	}
	return nil
}

// EndSession closes a session. Ending an already ended session succeeds.
func (s *Service) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	return s.endSession(ctx, sessionID, s.clamp(endedAt), domain.EndReasonClient)
}

func (s *Service) endSession(ctx context.Context, sessionID string, endedAt time.Time, reason string) error {
	ended, err := s.store.EndSession(ctx, sessionID, endedAt, reason)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if ended {
		s.publish(domain.LifecycleEventEnded, session)
	}
	return nil
}

// GetSession returns a stored session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ActiveSessionCount returns the number of open sessions.
func (s *Service) ActiveSessionCount(ctx context.Context) (int, error) {
	return s.store.CountActiveSessions(ctx)
}

// DefaultStatsWindow is the range covered by SessionStats when the caller
// gives no start time.
const DefaultStatsWindow = 30 * 24 * time.Hour

// SessionStats aggregates human sessions for a domain. A zero To means now and
// a zero From means DefaultStatsWindow before To.
func (s *Service) SessionStats(ctx context.Context, filter domain.StatsFilter) (*domain.SessionStats, error) {
	if filter.To.IsZero() {
		filter.To = s.now().UTC()
	}
	if filter.From.IsZero() {
		filter.From = filter.To.Add(-DefaultStatsWindow)
	}
	if filter.From.After(filter.To) {
		return nil, ErrInvalidRange
	}
	stats, err := s.store.SessionStats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}
	return stats, nil
}

func (s *Service) clamp(t time.Time) time.Time {
	if now := s.now(); t.After(now) {
		return now
	}
	return t
}

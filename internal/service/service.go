// Package service implements the server side of the session lifecycle.
package service

import (
	"errors"
	"time"

	"github.com/xiaot623/blogpulse/internal/config"
	"github.com/xiaot623/blogpulse/internal/domain"
	"github.com/xiaot623/blogpulse/internal/policy"
	store "github.com/xiaot623/blogpulse/internal/repository"
)

var (
	// ErrSessionNotFound is returned for unknown or already ended sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBlocked is returned when the admission policy refuses a session.
	ErrSessionBlocked = errors.New("session blocked by policy")
	// ErrInvalidRange is returned when a stats range starts after it ends.
	ErrInvalidRange = errors.New("from must not be after to")
)

// Publisher receives session lifecycle events.
type Publisher interface {
	Publish(event domain.LifecycleEvent)
}

type Service struct {
	store        store.Store
	policyEngine *policy.Engine
	publisher    Publisher
	config       *config.Config
	now          func() time.Time
}

func New(store store.Store, policyEngine *policy.Engine, publisher Publisher, cfg *config.Config) *Service {
	return &Service{
		store:        store,
		policyEngine: policyEngine,
		publisher:    publisher,
		config:       cfg,
		now:          time.Now,
	}
}

func (s *Service) publish(t domain.LifecycleEventType, session *domain.Session) {
	if s.publisher == nil || session == nil {
		return
	}
	s.publisher.Publish(domain.NewLifecycleEvent(t, session))
}

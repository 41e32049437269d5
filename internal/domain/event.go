package domain

import "time"

// LifecycleEventType names a session lifecycle transition.
type LifecycleEventType string

const (
	LifecycleEventCreated  LifecycleEventType = "session_created"
	LifecycleEventActivity LifecycleEventType = "session_activity"
	LifecycleEventEnded    LifecycleEventType = "session_ended"
)

// LifecycleEvent is pushed to live feed subscribers.
type LifecycleEvent struct {
	Type      LifecycleEventType `json:"type"`
	Ts        int64              `json:"ts"` // Unix milliseconds
	SessionID string             `json:"session_id"`
	Session   *Session           `json:"session,omitempty"`
}

// NewLifecycleEvent stamps an event with the current time.
func NewLifecycleEvent(t LifecycleEventType, s *Session) LifecycleEvent {
	return LifecycleEvent{
		Type:      t,
		Ts:        time.Now().UnixMilli(),
		SessionID: s.SessionID,
		Session:   s,
	}
}

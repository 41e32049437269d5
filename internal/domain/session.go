// Package domain defines the session models shared by the tracker client and
// the session API server.
package domain

import "time"

// DeviceType is the coarse device class derived from a user agent.
type DeviceType string

const (
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeTablet  DeviceType = "tablet"
	DeviceTypeUnknown DeviceType = "unknown"
)

// Session is the server-side record of one continuous period of page
// engagement.
type Session struct {
	SessionID        string     `json:"session_id"`
	UserAgent        string     `json:"user_agent"`
	Referrer         string     `json:"referrer,omitempty"`
	ScreenResolution string     `json:"screen_resolution,omitempty"`
	Language         string     `json:"language,omitempty"`
	IPAddress        string     `json:"ip_address,omitempty"`
	DomainName       string     `json:"domain_name,omitempty"`
	DeviceType       DeviceType `json:"device_type"`
	Browser          string     `json:"browser"`
	OS               string     `json:"os"`
	IsBot            bool       `json:"is_bot"`
	HeartbeatCount   int        `json:"heartbeat_count"`
	StartedAt        time.Time  `json:"started_at"`
	LastActivityAt   time.Time  `json:"last_activity_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	DurationSeconds  *int64     `json:"duration_seconds,omitempty"`
	EndReason        string     `json:"end_reason,omitempty"`
}

// Active reports whether the session has not been ended yet.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// End reasons recorded on the session row.
const (
	EndReasonClient = "client"
	EndReasonStale  = "stale"
)

package domain

import "time"

// StatsFilter selects the sessions an aggregate covers. Bots are always
// excluded. An empty DomainName covers every domain.
type StatsFilter struct {
	DomainName string
	From       time.Time
	To         time.Time
}

// DeviceBreakdown counts sessions per device type.
type DeviceBreakdown struct {
	Mobile  int `json:"mobile"`
	Desktop int `json:"desktop"`
	Tablet  int `json:"tablet"`
	Unknown int `json:"unknown"`
}

// SessionStats aggregates human sessions started within a time range.
type SessionStats struct {
	DomainName   string          `json:"domain_name,omitempty"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	SessionCount int             `json:"session_count"`
	Devices      DeviceBreakdown `json:"devices"`
	// AverageDurationSeconds covers ended sessions only.
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
	// BounceRate is the share of sessions that ended without a single
	// heartbeat, i.e. the visitor left within one heartbeat interval.
	BounceRate float64 `json:"bounce_rate"`
}

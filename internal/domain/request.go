package domain

// CreateSessionRequest is the body of POST /session/create.
// It doubles as the SessionDescriptor captured by the tracker.
type CreateSessionRequest struct {
	UserAgent        string `json:"user_agent"`
	Referrer         string `json:"referrer,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	Language         string `json:"language,omitempty"`
}

// CreateSessionResponse is returned by POST /session/create.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// UpdateSessionRequest is the body of POST /session/update.
// LastActivity is an RFC3339 timestamp.
type UpdateSessionRequest struct {
	SessionID    string `json:"session_id"`
	LastActivity string `json:"last_activity"`
}

// EndSessionRequest is the body of POST /session/end.
// EndedAt is an RFC3339 timestamp.
type EndSessionRequest struct {
	SessionID string `json:"session_id"`
	EndedAt   string `json:"ended_at"`
}

// SuccessResponse is returned by the update and end routes.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the JSON error body returned by every route.
type ErrorResponse struct {
	Error string `json:"error"`
}

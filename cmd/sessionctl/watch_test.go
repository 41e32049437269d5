package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/blogpulse/internal/domain"
)

func TestFeedURL(t *testing.T) {
	tests := []struct {
		api, session, want string
	}{
		{"http://localhost:8080", "", "ws://localhost:8080/session/ws"},
		{"http://localhost:8080/", "", "ws://localhost:8080/session/ws"},
		{"https://pulse.example.com/api", "abc", "wss://pulse.example.com/api/session/ws?session_id=abc"},
	}
	for _, tt := range tests {
		got, err := feedURL(tt.api, tt.session)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestFormatEvent(t *testing.T) {
	duration := int64(42)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local).UnixMilli()

	line := formatEvent(domain.LifecycleEvent{
		Type:      domain.LifecycleEventEnded,
		Ts:        ts,
		SessionID: "s1",
		Session:   &domain.Session{SessionID: "s1", DurationSeconds: &duration, EndReason: domain.EndReasonStale},
	})

	assert.Contains(t, line, "12:00:00")
	assert.Contains(t, line, "session_ended")
	assert.Contains(t, line, "42s (stale)")
}

func TestSplitPaths(t *testing.T) {
	assert.Equal(t, []string{"/", "/posts"}, splitPaths(" /, ,/posts,"))
	assert.Nil(t, splitPaths(""))
}

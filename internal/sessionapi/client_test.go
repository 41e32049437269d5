package sessionapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/blogpulse/internal/domain"
)

type capturedRequest struct {
	Path        string
	ContentType string
	Body        []byte
}

type apiStub struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	delay    time.Duration
}

func (s *apiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, capturedRequest{Path: r.URL.Path, ContentType: r.Header.Get("Content-Type"), Body: body})
	status, delay := s.status, s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/session/create":
		_, _ = w.Write([]byte(`{"session_id":"s1"}`))
	case "/session/stats":
		_, _ = w.Write([]byte(`{"domain_name":"` + r.URL.Query().Get("domain") + `","session_count":4,"devices":{"mobile":3,"desktop":1},"bounce_rate":0.25}`))
	case "/session/s1":
		_, _ = w.Write([]byte(`{"session_id":"s1","browser":"Chrome","device_type":"desktop"}`))
	default:
		_, _ = w.Write([]byte(`{"success":true}`))
	}
}

func (s *apiStub) captured() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedRequest(nil), s.requests...)
}

func TestClientRoundTrips(t *testing.T) {
	stub := &apiStub{}
	server := httptest.NewServer(stub)
	defer server.Close()

	client := NewClient(server.URL+"/", WithHTTPClient(server.Client()))
	ctx := context.Background()

	id, err := client.CreateSession(ctx, domain.CreateSessionRequest{UserAgent: "ua", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "s1", id)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, client.UpdateActivity(ctx, id, at))
	require.NoError(t, client.EndSession(ctx, id, at.Add(time.Minute)))

	session, err := client.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Chrome", session.Browser)

	reqs := stub.captured()
	require.Len(t, reqs, 4)
	assert.Equal(t, "/session/create", reqs[0].Path)
	assert.Equal(t, "application/json", reqs[0].ContentType)

	var update domain.UpdateSessionRequest
	require.NoError(t, json.Unmarshal(reqs[1].Body, &update))
	assert.Equal(t, "s1", update.SessionID)
	assert.Equal(t, "2024-05-01T12:00:00Z", update.LastActivity)

	var end domain.EndSessionRequest
	require.NoError(t, json.Unmarshal(reqs[2].Body, &end))
	assert.Equal(t, "2024-05-01T12:01:00Z", end.EndedAt)
}

func TestClientStatusError(t *testing.T) {
	stub := &apiStub{status: http.StatusServiceUnavailable}
	server := httptest.NewServer(stub)
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()))
	_, err := client.CreateSession(context.Background(), domain.CreateSessionRequest{UserAgent: "ua"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Contains(t, statusErr.Body, "boom")
}

func TestSendEndBeaconIsDetached(t *testing.T) {
	stub := &apiStub{delay: 50 * time.Millisecond}
	server := httptest.NewServer(stub)
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()), WithBeaconGrace(time.Second))

	start := time.Now()
	assert.True(t, client.SendEndBeacon("s1", time.Now()))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "beacon must not wait for the response")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Flush(ctx))

	reqs := stub.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/session/end", reqs[0].Path)
	assert.Equal(t, "text/plain;charset=UTF-8", reqs[0].ContentType)

	// once flushed, the client refuses new beacons
	assert.False(t, client.SendEndBeacon("s2", time.Now()))
	require.NoError(t, client.Flush(ctx))
	assert.Len(t, stub.captured(), 1)
}

func TestFlushHonoursContext(t *testing.T) {
	stub := &apiStub{delay: 500 * time.Millisecond}
	server := httptest.NewServer(stub)
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()), WithBeaconGrace(time.Second))
	client.SendEndBeacon("s1", time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.Flush(ctx), context.DeadlineExceeded)
}

func TestGetStats(t *testing.T) {
	stub := &apiStub{}
	server := httptest.NewServer(stub)
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()))
	stats, err := client.GetStats(context.Background(), "blog.example")
	require.NoError(t, err)

	assert.Equal(t, "blog.example", stats.DomainName)
	assert.Equal(t, 4, stats.SessionCount)
	assert.Equal(t, 3, stats.Devices.Mobile)
	assert.InDelta(t, 0.25, stats.BounceRate, 1e-9)
}

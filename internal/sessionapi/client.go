// Package sessionapi is the HTTP client for the remote session API.
package sessionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/blogpulse/internal/domain"
)

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("session api returned status %d: %s", e.Code, e.Body)
}

// Client talks to the session API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	beaconGrace time.Duration
	log         *slog.Logger

	mu       sync.Mutex
	flushing bool
	beacons  sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBeaconGrace bounds how long a beacon may stay in flight.
func WithBeaconGrace(d time.Duration) Option {
	return func(c *Client) { c.beaconGrace = d }
}

// WithLogger sets the logger used for beacon failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a new session API client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		beaconGrace: 2 * time.Second,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession registers a new session and returns its id.
func (c *Client) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (string, error) {
	var resp domain.CreateSessionResponse
	if err := c.post(ctx, "/session/create", contentTypeJSON, req, &resp); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("failed to create session: empty session_id in response")
	}
	return resp.SessionID, nil
}

// UpdateActivity reports that the session was alive at the given time.
func (c *Client) UpdateActivity(ctx context.Context, sessionID string, at time.Time) error {
	req := domain.UpdateSessionRequest{
		SessionID:    sessionID,
		LastActivity: at.UTC().Format(time.RFC3339Nano),
	}
	if err := c.post(ctx, "/session/update", contentTypeJSON, req, nil); err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	return nil
}

// EndSession closes the session and waits for the answer.
func (c *Client) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	if err := c.post(ctx, "/session/end", contentTypeJSON, endRequest(sessionID, endedAt), nil); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// SendEndBeacon queues a close request and returns immediately. The request
// runs detached from any caller context, bounded by the beacon grace period,
// so it outlives the tracker that sent it. Call Flush before the process exits.
// It reports false, sending nothing, once Flush has started.
func (c *Client) SendEndBeacon(sessionID string, endedAt time.Time) bool {
	body := endRequest(sessionID, endedAt)

	c.mu.Lock()
	if c.flushing {
		c.mu.Unlock()
		return false
	}
	c.beacons.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.beacons.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.beaconGrace)
		defer cancel()
		if err := c.post(ctx, "/session/end", beaconContentType, body, nil); err != nil {
			c.log.Warn("session end beacon failed", "session_id", sessionID, "error", err)
		}
	}()
	return true
}

// Flush waits for in-flight beacons or until ctx is done. It is meant for
// process shutdown, after the trackers using this client have ended; later
// beacons are refused.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.flushing = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.beacons.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetSession fetches the server-side record of a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var session domain.Session
	if err := c.do(httpReq, &session); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// GetStats fetches aggregate analytics for a domain over the server's default
// window. An empty domain covers all domains.
func (c *Client) GetStats(ctx context.Context, domainName string) (*domain.SessionStats, error) {
	endpoint := c.baseURL + "/session/stats"
	if domainName != "" {
		endpoint += "?" + url.Values{"domain": {domainName}}.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var stats domain.SessionStats
	if err := c.do(httpReq, &stats); err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}
	return &stats, nil
}

const (
	contentTypeJSON   = "application/json"
	beaconContentType = "text/plain;charset=UTF-8"
)

func endRequest(sessionID string, endedAt time.Time) domain.EndSessionRequest {
	return domain.EndSessionRequest{
		SessionID: sessionID,
		EndedAt:   endedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (c *Client) post(ctx context.Context, path, contentType string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	return c.do(httpReq, out)
}

func (c *Client) do(httpReq *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

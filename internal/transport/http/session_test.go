package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/blogpulse/internal/config"
	"github.com/xiaot623/blogpulse/internal/domain"
	"github.com/xiaot623/blogpulse/internal/hub"
	"github.com/xiaot623/blogpulse/internal/policy"
	store "github.com/xiaot623/blogpulse/internal/repository"
	"github.com/xiaot623/blogpulse/internal/service"
	"github.com/xiaot623/blogpulse/internal/testutil"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func newTestHandler(t *testing.T) (*Handler, store.Store, *config.Config) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.RateLimitRPS = 0
	db := testutil.NewTestSQLiteStore(t)
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	h := hub.NewHub()
	go h.Run(ctx)

	svc := service.New(db, engine, h, cfg)
	return NewHandler(cfg, svc, h), db, cfg
}

func doJSON(t *testing.T, e *echo.Echo, fn echo.HandlerFunc, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, fn(c))
	return rec
}

func createSession(t *testing.T, e *echo.Echo, h *Handler) string {
	t.Helper()
	body := `{"user_agent":"` + chromeUA + `","referrer":"https://search.example/q","screen_resolution":"1920x1080","language":"en-US"}`
	rec := doJSON(t, e, h.CreateSession, http.MethodPost, "/session/create", echo.MIMEApplicationJSON, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func TestCreateSessionValidation(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	cases := map[string]string{
		"missing user agent": `{"language":"en"}`,
		"bad referrer":       `{"user_agent":"ua","referrer":"not a url"}`,
		"long language":      `{"user_agent":"ua","language":"en-US-x-private"}`,
		"long resolution":    `{"user_agent":"ua","screen_resolution":"` + strings.Repeat("9", 51) + `"}`,
		"too long agent":     `{"user_agent":"` + strings.Repeat("a", 501) + `"}`,
		"malformed":          `{"user_agent":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, e, h.CreateSession, http.MethodPost, "/session/create", echo.MIMEApplicationJSON, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateSessionBlockedByPolicy(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, e, h.CreateSession, http.MethodPost, "/session/create", echo.MIMEApplicationJSON, `{"user_agent":"kube-probe/1.29"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	e := echo.New()
	h, db, _ := newTestHandler(t)

	sessionID := createSession(t, e, h)

	stored, err := db.GetSession(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Chrome", stored.Browser)
	assert.Equal(t, "Windows", stored.OS)
	assert.Equal(t, "example.com", stored.DomainName)

	now := time.Now().UTC().Format(time.RFC3339)
	rec := doJSON(t, e, h.UpdateSession, http.MethodPost, "/session/update", echo.MIMEApplicationJSON,
		`{"session_id":"`+sessionID+`","last_activity":"`+now+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// beacons arrive as text/plain
	rec = doJSON(t, e, h.EndSession, http.MethodPost, "/session/end", "text/plain;charset=UTF-8",
		`{"session_id":"`+sessionID+`","ended_at":"`+now+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var ok domain.SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.True(t, ok.Success)

	stored, err = db.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, stored.Active())
	assert.Equal(t, 1, stored.HeartbeatCount)

	// a late heartbeat for an ended session is rejected, a repeated end is not
	rec = doJSON(t, e, h.UpdateSession, http.MethodPost, "/session/update", echo.MIMEApplicationJSON,
		`{"session_id":"`+sessionID+`","last_activity":"`+now+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, e, h.EndSession, http.MethodPost, "/session/end", "",
		`{"session_id":"`+sessionID+`","ended_at":"`+now+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateAndEndValidation(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, e, h.UpdateSession, http.MethodPost, "/session/update", echo.MIMEApplicationJSON, `{"session_id":"s1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, e, h.UpdateSession, http.MethodPost, "/session/update", echo.MIMEApplicationJSON, `{"last_activity":"2024-01-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, e, h.EndSession, http.MethodPost, "/session/end", echo.MIMEApplicationJSON, `{"session_id":"s1","ended_at":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, e, h.EndSession, http.MethodPost, "/session/end", echo.MIMEApplicationJSON, `{"session_id":"missing","ended_at":"2024-01-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSession(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)
	sessionID := createSession(t, e, h)

	req := httptest.NewRequest(http.MethodGet, "/session/"+sessionID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues(sessionID)
	require.NoError(t, h.GetSession(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, sessionID, got.SessionID)
	assert.Equal(t, domain.DeviceTypeDesktop, got.DeviceType)

	req = httptest.NewRequest(http.MethodGet, "/session/nope", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("nope")
	require.NoError(t, h.GetSession(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)
	h.RegisterRoutes(e, rateLimiter(1))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/session/create", bytes.NewBufferString(`{"user_agent":"`+chromeUA+`"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	// burst of two, then denied
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestHealth(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)
	createSession(t, e, h)

	rec := doJSON(t, e, h.Health, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["active_sessions"])
}

func TestFeedStreamsLifecycleEvents(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)
	h.RegisterRoutes(e, rateLimiter(0))

	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/session/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the subscription is registered asynchronously after the upgrade
	require.Eventually(t, func() bool { return h.hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/session/create", echo.MIMEApplicationJSON, strings.NewReader(`{"user_agent":"`+chromeUA+`"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt domain.LifecycleEvent
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, domain.LifecycleEventCreated, evt.Type)
	assert.NotEmpty(t, evt.SessionID)
	require.NotNil(t, evt.Session)
	assert.Equal(t, "Chrome", evt.Session.Browser)
}

func TestSessionStats(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)
	h.RegisterRoutes(e, rateLimiter(0))

	first := createSession(t, e, h)
	createSession(t, e, h)
	now := time.Now().UTC().Format(time.RFC3339)
	rec := doJSON(t, e, h.EndSession, http.MethodPost, "/session/end", echo.MIMEApplicationJSON,
		`{"session_id":"`+first+`","ended_at":"`+now+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	get := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/session/stats"+query, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec = get("?domain=example.com")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats domain.SessionStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "example.com", stats.DomainName)
	assert.Equal(t, 2, stats.SessionCount)
	assert.Equal(t, 2, stats.Devices.Desktop)
	// the ended session never sent a heartbeat
	assert.InDelta(t, 0.5, stats.BounceRate, 1e-9)

	rec = get("?domain=other.example")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.SessionCount)

	assert.Equal(t, http.StatusBadRequest, get("?from=yesterday").Code)
	assert.Equal(t, http.StatusBadRequest, get("?from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z").Code)
}

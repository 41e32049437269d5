package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/blogpulse/internal/domain"
	"github.com/xiaot623/blogpulse/internal/logger"
	"github.com/xiaot623/blogpulse/internal/service"
)

const maxBodyBytes = 16 << 10

// CreateSession creates a new session.
// POST /session/create
func (h *Handler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.CreateSessionRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}
	if err := validateCreate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
	}

	session, err := h.service.CreateSession(ctx, req, service.RequestMeta{
		IPAddress:  c.RealIP(),
		DomainName: hostname(c.Request().Host),
	})
	if errors.Is(err, service.ErrSessionBlocked) {
		return c.JSON(http.StatusForbidden, domain.ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		logger.NewRequestLogger().Error("create session failed", "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "failed to create session"})
	}

	return c.JSON(http.StatusOK, domain.CreateSessionResponse{SessionID: session.SessionID})
}

// UpdateSession records a heartbeat.
// POST /session/update
func (h *Handler) UpdateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.UpdateSessionRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "session_id is required"})
	}
	at, err := parseTimestamp(req.LastActivity, "last_activity")
	if err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
	}

	err = h.service.UpdateActivity(ctx, req.SessionID, at)
	if errors.Is(err, service.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		logger.NewRequestLogger().Error("update session failed", "session_id", req.SessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "failed to update session"})
	}

	return c.JSON(http.StatusOK, domain.SuccessResponse{Success: true})
}

// EndSession closes a session. It also serves beacon deliveries, which
// arrive as text/plain.
// POST /session/end
func (h *Handler) EndSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.EndSessionRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "session_id is required"})
	}
	endedAt, err := parseTimestamp(req.EndedAt, "ended_at")
	if err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
	}

	err = h.service.EndSession(ctx, req.SessionID, endedAt)
	if errors.Is(err, service.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		logger.NewRequestLogger().Error("end session failed", "session_id", req.SessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "failed to end session"})
	}

	return c.JSON(http.StatusOK, domain.SuccessResponse{Success: true})
}

// GetSession returns a stored session.
// GET /session/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	session, err := h.service.GetSession(ctx, sessionID)
	if errors.Is(err, service.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: "session not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, session)
}

// SessionStats returns aggregate analytics for human sessions.
// GET /session/stats?domain=&from=&to=
func (h *Handler) SessionStats(c echo.Context) error {
	ctx := c.Request().Context()

	filter := domain.StatsFilter{DomainName: c.QueryParam("domain")}
	var err error
	if raw := c.QueryParam("from"); raw != "" {
		if filter.From, err = parseTimestamp(raw, "from"); err != nil {
			return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
		}
	}
	if raw := c.QueryParam("to"); raw != "" {
		if filter.To, err = parseTimestamp(raw, "to"); err != nil {
			return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
		}
	}

	stats, err := h.service.SessionStats(ctx, filter)
	if errors.Is(err, service.ErrInvalidRange) {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		logger.NewRequestLogger().Error("session stats failed", "domain", filter.DomainName, "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "failed to get session stats"})
	}

	return c.JSON(http.StatusOK, stats)
}

// decodeBody reads a JSON body regardless of Content-Type, since
// navigator.sendBeacon style clients post text/plain.
func decodeBody(c echo.Context, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func validateCreate(req *domain.CreateSessionRequest) error {
	if n := utf8.RuneCountInString(req.UserAgent); n < 1 || n > 500 {
		return errors.New("user agent must be between 1 and 500 characters")
	}
	if req.Referrer != "" {
		u, err := url.Parse(req.Referrer)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("invalid referrer URL")
		}
	}
	if utf8.RuneCountInString(req.ScreenResolution) > 50 {
		return errors.New("screen resolution too long")
	}
	if utf8.RuneCountInString(req.Language) > 10 {
		return errors.New("language code too long")
	}
	return nil
}

func parseTimestamp(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 timestamp", field)
	}
	return t, nil
}

func hostname(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

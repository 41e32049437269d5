package http

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/blogpulse/internal/config"
	"github.com/xiaot623/blogpulse/internal/hub"
	"github.com/xiaot623/blogpulse/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	hub      *hub.Hub
	config   *config.Config
	upgrader websocket.Upgrader
}

// NewHandler creates a new handler.
func NewHandler(cfg *config.Config, svc *service.Service, h *hub.Hub) *Handler {
	return &Handler{
		service: svc,
		hub:     h,
		config:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The dashboard is served from tenant domains.
				return true
			},
		},
	}
}

// RegisterRoutes registers routes with the echo server. limiter guards the
// session write routes.
func (h *Handler) RegisterRoutes(e *echo.Echo, limiter echo.MiddlewareFunc) {
	g := e.Group("/session")
	g.POST("/create", h.CreateSession, limiter)
	g.POST("/update", h.UpdateSession, limiter)
	g.POST("/end", h.EndSession, limiter)
	g.GET("/ws", h.Feed)
	g.GET("/stats", h.SessionStats)
	g.GET("/:session_id", h.GetSession)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	active, err := h.service.ActiveSessionCount(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":           "healthy",
		"active_sessions":  active,
		"feed_subscribers": h.hub.ConnectionCount(),
	})
}

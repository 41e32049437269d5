package http

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/blogpulse/internal/hub"
)

// Feed streams session lifecycle events over a websocket.
// GET /session/ws?session_id=<optional filter>
func (h *Handler) Feed(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("failed to upgrade feed websocket", "error", err)
		return err
	}

	conn := h.hub.NewConnection(ws, c.QueryParam("session_id"))
	if !h.hub.Register(conn) {
		ws.Close()
		return nil
	}

	go h.writePump(conn)
	go h.readPump(conn)

	return nil
}

// readPump only watches for the subscriber going away; the feed is one-way.
func (h *Handler) readPump(conn *hub.Connection) {
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(h.config.WSReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.config.WSReadTimeout))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("feed websocket closed", "conn_id", conn.ID, "error", err)
			}
			return
		}
	}
}

func (h *Handler) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(h.config.WSPingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(h.config.WSWriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("failed to write feed message", "conn_id", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.config.WSWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

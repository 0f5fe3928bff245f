package queueboard

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/opdesk/clinic-queue/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Boards are public read-only displays; origin checks add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades board connections and attaches them to the hub.
type Handler struct {
	hub    *Hub
	logger *logging.Logger
}

// NewHandler creates the websocket endpoint handler.
func NewHandler(hub *Hub, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{hub: hub, logger: logger}
}

// ServeWS handles GET /board/ws.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("queue board upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 256)}
	h.hub.register <- c

	go c.writePump()
	go c.readPump(h.hub)
}

// readPump drains inbound frames so pings and close frames are processed;
// boards never send application messages.
func (c *client) readPump(hub *Hub) {
	defer func() {
		hub.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// Package queueboard pushes live token/status updates to waiting-room
// displays over websockets. The booking service publishes an event after
// every committed state change; connected boards redraw from it.
package queueboard

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/opdesk/clinic-queue/pkg/logging"
)

// Event is one queue update pushed to every connected board.
type Event struct {
	DoctorID     string `json:"doctor_id"`
	Date         string `json:"date"`
	Token        string `json:"token"`
	Status       string `json:"status"`
	SessionIndex int    `json:"session_index"`
	SlotIndex    int    `json:"slot_index"`
	TimeLabel    string `json:"time_label,omitempty"`
}

// client is one connected board.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to all connected boards. Slow consumers are dropped
// rather than allowed to block the broadcast loop.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	logger     *logging.Logger
}

// NewHub creates a hub; callers must start Run in a goroutine.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
	}
}

// Run owns the client set. It exits when the hub is never used again; there
// is no shutdown signal because board connections die with the process.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug("queue board connected", "boards", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Debug("queue board disconnected", "boards", len(h.clients))
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Publish queues an event for broadcast. It never blocks the caller; when
// the buffer is full the event is dropped, since boards resync on the next
// update anyway.
func (h *Hub) Publish(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("queue board marshal failed", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("queue board broadcast buffer full, dropping event")
	}
}

// Package chat fans chat messages out to connected members over
// websockets. Membership and the end-of-event gate are enforced by the
// events service on every post; the hub only moves bytes.
package chat

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"popout/internal/events"
	"popout/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
)

type Hub struct {
	svc      *events.Service
	log      *zap.Logger
	upgrader websocket.Upgrader

	register   chan subscription
	unregister chan subscription
	broadcast  chan outbound
}

type subscription struct {
	eventID string
	conn    *connection
}

type connection struct {
	ws   *websocket.Conn
	send chan any
}

type outbound struct {
	eventID string
	payload any
}

type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type inboundMessage struct {
	Body string `json:"body"`
}

func NewHub(svc *events.Service, log *zap.Logger) *Hub {
	return &Hub{
		svc: svc,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		register:   make(chan subscription),
		unregister: make(chan subscription),
		broadcast:  make(chan outbound, 64),
	}
}

// Run owns the room table. Start once per process.
func (h *Hub) Run() {
	rooms := map[string]map[*connection]bool{}
	for {
		select {
		case sub := <-h.register:
			if rooms[sub.eventID] == nil {
				rooms[sub.eventID] = map[*connection]bool{}
			}
			rooms[sub.eventID][sub.conn] = true
		case sub := <-h.unregister:
			if conns, ok := rooms[sub.eventID]; ok {
				if conns[sub.conn] {
					delete(conns, sub.conn)
					close(sub.conn.send)
				}
				if len(conns) == 0 {
					delete(rooms, sub.eventID)
				}
			}
		case msg := <-h.broadcast:
			for conn := range rooms[msg.eventID] {
				select {
				case conn.send <- msg.payload:
				default:
					// Slow consumer; drop the connection rather than block the hub.
					delete(rooms[msg.eventID], conn)
					close(conn.send)
				}
			}
		}
	}
}

// Broadcast delivers a chat message to every connection in the event's room.
func (h *Hub) Broadcast(eventID string, m models.ChatMessage) {
	h.broadcast <- outbound{eventID: eventID, payload: wsEnvelope{Type: "message", Data: messageJSON(m)}}
}

func messageJSON(m models.ChatMessage) map[string]any {
	return map[string]any{
		"id":         m.ID,
		"event_id":   m.EventID,
		"user_id":    m.UserID,
		"username":   m.Username,
		"body":       m.Body,
		"created_at": m.CreatedAt.Format(time.RFC3339),
	}
}

// Serve upgrades the request and pumps messages both ways until the client
// disconnects. The caller has already verified membership.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, e models.Event, user models.User) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.String("event_id", e.ID), zap.Error(err))
		return
	}
	conn := &connection{ws: ws, send: make(chan any, 16)}
	h.register <- subscription{eventID: e.ID, conn: conn}

	go h.writePump(conn)
	h.readPump(r, conn, e, user)
}

func (h *Hub) readPump(r *http.Request, conn *connection, e models.Event, user models.User) {
	defer func() {
		h.unregister <- subscription{eventID: e.ID, conn: conn}
		conn.ws.Close()
	}()
	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inboundMessage
		if err := conn.ws.ReadJSON(&in); err != nil {
			return
		}
		m, err := h.svc.PostMessage(r.Context(), e, user, in.Body)
		if err != nil {
			select {
			case conn.send <- wsEnvelope{Type: "error", Data: err.Error()}:
			default:
			}
			continue
		}
		h.Broadcast(e.ID, m)
	}
}

func (h *Hub) writePump(conn *connection) {
	ticker := time.NewTicker(pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()
	for {
		select {
		case payload, ok := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteJSON(payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Package notify fans room events out to WebSocket subscribers.
package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event types.
const (
	EventJoin    = "join"
	EventLeave   = "leave"
	EventKick    = "kick"
	EventDelete  = "delete"
	EventMessage = "message"
	EventOwner   = "owner"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Event is a room notification.
type Event struct {
	Type      string      `json:"type"`
	RoomID    string      `json:"room_id"`
	Username  string      `json:"username,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"ts"`
}

// Subscriber receives the events of one room.
type Subscriber struct {
	roomID   string
	username string
	send     chan Event
}

// C returns the channel events are delivered on. It is closed on unsubscribe.
func (s *Subscriber) C() <-chan Event {
	return s.send
}

// Hub tracks subscribers per room. Publishing never blocks: events for a
// subscriber whose buffer is full are dropped.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]map[*Subscriber]struct{}
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	onChange func(total int)
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Subscriber]struct{}),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// OnSubscribersChanged registers a callback receiving the total subscriber count.
func (h *Hub) OnSubscribersChanged(fn func(total int)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Subscribe registers a subscriber for roomID on behalf of username.
func (h *Hub) Subscribe(roomID, username string) *Subscriber {
	sub := &Subscriber{roomID: roomID, username: username, send: make(chan Event, sendBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.rooms[roomID] = subs
	}
	subs[sub] = struct{}{}
	h.changed()
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.rooms[sub.roomID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, sub.roomID)
	}
	close(sub.send)
	h.changed()
}

// Publish delivers evt to every subscriber of its room.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.rooms[evt.RoomID] {
		select {
		case sub.send <- evt:
		default:
			h.logger.Warn().Str("room", evt.RoomID).Str("type", evt.Type).Msg("dropping event for slow subscriber")
		}
	}
}

// CloseRoom unsubscribes everyone from roomID, e.g. after the room is deleted.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.rooms[roomID] {
		close(sub.send)
	}
	delete(h.rooms, roomID)
	h.changed()
}

// Disconnect closes every subscription username holds on roomID, e.g. after
// they leave or are kicked. Events already queued are still delivered.
// It returns the number of subscriptions closed.
func (h *Hub) Disconnect(roomID, username string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.rooms[roomID]
	n := 0
	for sub := range subs {
		if sub.username != username {
			continue
		}
		delete(subs, sub)
		close(sub.send)
		n++
	}
	if n == 0 {
		return 0
	}
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
	h.changed()
	return n
}

// RenameUser moves open subscriptions of oldName to newName.
func (h *Hub) RenameUser(oldName, newName string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, subs := range h.rooms {
		for sub := range subs {
			if sub.username == oldName {
				sub.username = newName
			}
		}
	}
}

// Subscribers returns the number of subscribers across all rooms.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count()
}

func (h *Hub) count() int {
	n := 0
	for _, subs := range h.rooms {
		n += len(subs)
	}
	return n
}

// changed reports the subscriber count. Callers must hold h.mu.
func (h *Hub) changed() {
	if h.onChange != nil {
		h.onChange(h.count())
	}
}

// ServeWS upgrades the request and streams roomID's events as JSON until
// the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, roomID, username string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("room", roomID).Msg("websocket upgrade failed")
		return
	}

	sub := h.Subscribe(roomID, username)
	h.logger.Debug().Str("room", roomID).Str("user", username).Msg("websocket subscribed")

	done := make(chan struct{})
	go h.writePump(conn, sub, done)
	h.readPump(conn, done)
	h.Unsubscribe(sub)
}

// readPump discards client messages and returns when the connection closes.
func (h *Hub) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case evt, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribed"))
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

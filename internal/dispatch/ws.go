package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrNoSession reports that the recipient has no connected websocket.
var ErrNoSession = errors.New("no websocket session")

// Notification is the wire shape pushed to connected clients.
type Notification struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Payload any    `json:"payload,omitempty"`
}

// WSSession wraps one connected client. Writes are serialized; gorilla
// connections do not allow concurrent writers.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// WSRegistry holds connected user sessions and doubles as a notification
// transport: a recipient with a live socket gets the notification inline.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession)}
}

func (r *WSRegistry) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// Notify implements the notification transport over an open socket.
func (r *WSRegistry) Notify(ctx context.Context, recipientID, title, body string, payload any) error {
	r.mu.RLock()
	s, ok := r.sessions[recipientID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(Notification{Title: title, Body: body, Payload: payload})
}

// SendEvent forwards an arbitrary event (hub fan-out) to a connected user.
func (r *WSRegistry) SendEvent(userID string, v any) error {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(v)
}

package httpapi

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/delivery-coordinator/internal/hub"
)

var upgrader = websocket.Upgrader{}

// handleWS upgrades the connection, registers the user for direct
// notifications, and pumps hub events for the requested topics until the
// client disconnects. Subscriptions close on teardown so the hub never
// leaks fan-out targets; a send failing mid-delivery drops the connection
// and the client reconciles by re-fetching state on reconnect.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	topics := splitTopics(r.URL.Query().Get("topics"))
	if len(topics) == 0 {
		topics = []string{hub.UserTopic(userID)}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Warn("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}
	s.wsreg.Add(userID, conn)

	subs := make([]hub.Subscription, 0, len(topics))
	events := make(chan hub.Event, 32)
	stop := make(chan struct{})
	for _, topic := range topics {
		sub := s.hub.Subscribe(topic, 32)
		subs = append(subs, sub)
		go func(sub hub.Subscription) {
			for ev := range sub.Events() {
				select {
				case events <- ev:
				case <-stop:
					return
				}
			}
		}(sub)
	}

	var once sync.Once
	teardown := func() {
		once.Do(func() {
			close(stop)
			for _, sub := range subs {
				sub.Close()
			}
			s.wsreg.Remove(userID)
			_ = conn.Close()
		})
	}

	// Reader goroutine notices client disconnect.
	go func() {
		defer teardown()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer teardown()
		for {
			select {
			case <-stop:
				return
			case ev := <-events:
				// Writes go through the registry session so hub events and
				// direct notifications never interleave on the wire.
				if err := s.wsreg.SendEvent(userID, ev); err != nil {
					return
				}
			}
		}
	}()
}

func splitTopics(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

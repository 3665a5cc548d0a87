package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// DecisionEvent is the payload streamed to WebSocket subscribers for
// every scored application.
type DecisionEvent struct {
	ApplicantID string    `json:"applicant_id"`
	Timestamp   time.Time `json:"timestamp"`
	Probability float64   `json:"probability"`
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
}

// publish queues an event for broadcast. Slow consumers never block a
// scoring request; the event is dropped instead.
func (s *Server) publish(event DecisionEvent) {
	select {
	case s.broadcast <- event:
	default:
	}
}

// clientBroadcaster fans queued events out to all connected clients.
func (s *Server) clientBroadcaster() {
	for {
		select {
		case event := <-s.broadcast:
			s.broadcastToClients(event)
		case <-s.stop:
			return
		}
	}
}

func (s *Server) broadcastToClients(event DecisionEvent) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			log.Warn().Err(err).Msg("dropping WebSocket client")
			client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket client connected")

	// Reader loop only watches for close; the stream is one-way.
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, conn)
			s.clientsMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/bikewatch/pkg/logger"
	"github.com/okian/bikewatch/pkg/metrics"
)

// handleStream upgrades to a websocket and writes a snapshot after every
// dashboard change until the client goes away. Slow clients skip to the
// latest snapshot.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(fmt.Errorf("%w: %w", ErrUpgrade, err)))
		return
	}
	defer conn.Close()

	metrics.UpdateWebsocketClients(int(s.clients.Add(1)))
	defer func() { metrics.UpdateWebsocketClients(int(s.clients.Add(-1))) }()

	updates, cancel := s.dash.Subscribe()
	defer cancel()

	// the client never sends anything useful; reading detects the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, closeMessage(), time.Now().Add(s.writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				s.logger.Debug(r.Context(), "websocket client dropped", logger.Error(err))
				return
			}
		}
	}
}

// closeMessage is sent to clients when their subscription ends.
func closeMessage() []byte {
	return websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
}

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// stream upgrades to a websocket and pushes engine updates until either side
// goes away.
func (s *APIServer) stream(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so no update published after
	// the client sees the upgrade is missed.
	sub := s.engine.Subscribe()
	defer sub.Close()

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.logger.Info("Stream client connected",
		zap.String("subscriber", sub.ID),
		zap.String("remote", r.RemoteAddr))

	// The client never sends data; reading only surfaces the close frame.
	closed := make(chan struct{})

	go func() {
		defer close(closed)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			s.logger.Info("Stream client disconnected", zap.String("subscriber", sub.ID))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case u, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "engine stopped"),
					time.Now().Add(writeWait))

				return
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := conn.WriteJSON(u); err != nil {
				s.logger.Warn("Stream write failed", zap.String("subscriber", sub.ID), zap.Error(err))
				return
			}
		}
	}
}

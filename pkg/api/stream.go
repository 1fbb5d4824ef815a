package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const streamWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// handleStream pushes a graph snapshot on connect and after every change of
// the session. Clients only read; any inbound frame other than control
// frames is discarded.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream_upgrade_failed", "error", err, "trace_id", getTraceID(r.Context()))
		return
	}
	defer conn.Close()

	// The http.Server deadlines still apply to the hijacked connection.
	conn.SetReadDeadline(time.Time{})

	s.logger.Info("stream_connected", "remote", r.RemoteAddr, "trace_id", getTraceID(r.Context()))
	defer s.logger.Info("stream_disconnected", "remote", r.RemoteAddr)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	var sent uint64
	first := true
	for {
		if v := s.session.Version(); first || v != sent {
			snap, err := s.session.Snapshot()
			if err != nil {
				s.logger.Error("stream_snapshot_failed", "error", err)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
			sent, first = v, false
		}

		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

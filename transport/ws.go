package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/protocol"
)

// handleWS upgrades the connection and serves JSON-RPC frames. Every feed
// event is pushed to the peer as a notifications/event message. A single
// writer goroutine owns the connection's write side.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("transport.ws.upgrade_failed", "error", err.Error())
		return
	}
	defer conn.Close()
	conn.SetReadLimit(MaxRequestBytes)

	sub := s.dispatcher.Hub().Subscribe(s.opts.EventBuffer, nil)
	defer sub.Close()

	ctx := r.Context()
	replies := make(chan []byte, 16)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		s.writeLoop(conn, replies, sub.C(), done)
		// unblock the reader when the write side fails first
		_ = conn.Close()
	}()

	s.logger.Debug("transport.ws.open", "remote", r.RemoteAddr)
	defer func() {
		close(done)
		<-writerDone
		s.logger.Debug("transport.ws.close", "remote", r.RemoteAddr)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("transport.ws.read_error", "error", err.Error())
			}
			return
		}
		out := s.dispatcher.HandleMessage(ctx, data)
		if out == nil {
			continue
		}
		select {
		case replies <- out:
		case <-writerDone:
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, replies <-chan []byte, events <-chan feed.Event, done <-chan struct{}) {
	var ping <-chan time.Time
	if s.opts.PingInterval > 0 {
		t := time.NewTicker(s.opts.PingInterval)
		defer t.Stop()
		ping = t.C
	}

	write := func(msgType int, b []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		if err := conn.WriteMessage(msgType, b); err != nil {
			s.logger.Warn("transport.ws.write_error", "error", err.Error())
			return false
		}
		return true
	}

	for {
		select {
		case <-done:
			return
		case b := <-replies:
			if !write(websocket.TextMessage, b) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(time.Second))
				return
			}
			n, err := protocol.NewNotification(protocol.MethodNotifyEvent, ev)
			if err != nil {
				s.logger.Warn("transport.ws.encode_error", "event_id", ev.ID, "error", err.Error())
				continue
			}
			b, _ := json.Marshal(n)
			if !write(websocket.TextMessage, b) {
				return
			}
		case <-ping:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

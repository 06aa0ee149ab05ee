package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/protocol"
)

// errClosed is reported to calls in flight when the connection goes away.
var errClosed = errors.New("connection closed")

// WebSocketTransport multiplexes requests over one WebSocket connection and
// surfaces pushed events. Responses are matched to calls by request id.
type WebSocketTransport struct {
	url    string
	dialer *websocket.Dialer

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan *protocol.Response
	events  chan feed.Event
	done    chan struct{}
	err     error
}

// NewWebSocketTransport creates a transport for a ws:// or wss:// url.
func NewWebSocketTransport(url string) *WebSocketTransport {
	return &WebSocketTransport{url: url, dialer: websocket.DefaultDialer}
}

// Open dials the server and starts the read loop.
func (t *WebSocketTransport) Open(ctx context.Context) error {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return transportErr("websocket dial", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.pending = make(map[string]chan *protocol.Response)
	t.events = make(chan feed.Event, feed.DefaultBuffer)
	t.done = make(chan struct{})
	t.err = nil
	t.mu.Unlock()

	go t.readLoop(conn, t.events, t.done)
	return nil
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn, events chan feed.Event, done chan struct{}) {
	defer func() {
		close(events)
		close(done)
	}()
	for {
		var m protocol.Message
		if err := conn.ReadJSON(&m); err != nil {
			t.fail(err)
			return
		}
		if m.IsNotification() {
			if m.Method != protocol.MethodNotifyEvent {
				continue
			}
			var ev feed.Event
			if err := json.Unmarshal(m.Params, &ev); err != nil {
				continue
			}
			select {
			case events <- ev:
			default:
			}
			continue
		}

		var id string
		if err := json.Unmarshal(m.ID, &id); err != nil {
			continue
		}
		t.mu.Lock()
		ch, ok := t.pending[id]
		delete(t.pending, id)
		t.mu.Unlock()
		if ok {
			ch <- m.Response()
		}
	}
}

func (t *WebSocketTransport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		err = errClosed
	}
	t.err = err
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
}

// Call implements Transport.
func (t *WebSocketTransport) Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var id string
	if err := json.Unmarshal(req.ID, &id); err != nil {
		return nil, fmt.Errorf("websocket transport needs string ids: %w", err)
	}

	ch := make(chan *protocol.Response, 1)
	t.mu.Lock()
	if t.conn == nil || t.err != nil {
		err := t.err
		t.mu.Unlock()
		if err == nil {
			err = errClosed
		}
		return nil, transportErr("websocket", err)
	}
	conn, done := t.conn, t.done
	t.pending[id] = ch
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	err := conn.WriteJSON(req)
	t.writeMu.Unlock()
	if err != nil {
		t.forget(id)
		return nil, transportErr("websocket write", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, transportErr("websocket", t.lastErr())
		}
		return resp, nil
	case <-done:
		t.forget(id)
		return nil, transportErr("websocket", t.lastErr())
	case <-ctx.Done():
		t.forget(id)
		return nil, ctx.Err()
	}
}

func (t *WebSocketTransport) forget(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *WebSocketTransport) lastErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		return errClosed
	}
	return t.err
}

// Events implements EventSource. The channel closes with the connection.
func (t *WebSocketTransport) Events() <-chan feed.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.events
}

// Close sends a close frame and waits for the read loop to exit.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	conn, done := t.conn, t.done
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return conn.Close()
}

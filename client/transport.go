package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/dispatch"
	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/protocol"
)

// Transport carries requests to a dispatcher.
type Transport interface {
	Open(ctx context.Context) error
	Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	Close() error
}

// EventSource is implemented by transports that receive pushed events.
type EventSource interface {
	Events() <-chan feed.Event
}

func transportErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrTransport, op, err)
}

// LocalTransport calls an in-process dispatcher directly.
type LocalTransport struct {
	dispatcher *dispatch.Dispatcher
	buffer     int
	mu         sync.Mutex
	sub        *feed.Subscription
}

// NewLocalTransport wraps d.
func NewLocalTransport(d *dispatch.Dispatcher) *LocalTransport {
	return &LocalTransport{dispatcher: d, buffer: feed.DefaultBuffer}
}

// Open subscribes to the dispatcher's event hub.
func (t *LocalTransport) Open(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub == nil {
		t.sub = t.dispatcher.Hub().Subscribe(t.buffer, nil)
	}
	return nil
}

// Call implements Transport.
func (t *LocalTransport) Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	resp := t.dispatcher.Handle(ctx, req)
	if resp == nil {
		return nil, transportErr("local", fmt.Errorf("no response for %s", req.Method))
	}
	return resp, nil
}

// Events implements EventSource.
func (t *LocalTransport) Events() <-chan feed.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub == nil {
		return nil
	}
	return t.sub.C()
}

// Close releases the event subscription.
func (t *LocalTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub != nil {
		t.sub.Close()
		t.sub = nil
	}
	return nil
}

// HTTPTransport posts each request to {baseURL}/rpc.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport creates a transport for baseURL. A nil client uses
// http.DefaultClient.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{endpoint: strings.TrimSuffix(baseURL, "/") + "/rpc", client: client}
}

// Open is a no-op; HTTP is connectionless.
func (t *HTTPTransport) Open(context.Context) error { return nil }

// Call implements Transport.
func (t *HTTPTransport) Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, transportErr("http", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, transportErr("http", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, transportErr("http", fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(msg))))
	}
	var resp protocol.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, transportErr("http decode", err)
	}
	return &resp, nil
}

// Close is a no-op.
func (t *HTTPTransport) Close() error { return nil }

// Package protocol defines the JSON-RPC 2.0 envelopes, method names and
// categorized errors exchanged between evaluator agents and the dispatcher.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the only JSON-RPC version spoken.
const Version = "2.0"

const (
	MethodInitialize     = "initialize"
	MethodPing           = "ping"
	MethodToolsList      = "tools/list"
	MethodToolsCall      = "tools/call"
	MethodResourcesList  = "resources/list"
	MethodResourcesRead  = "resources/read"
	MethodNotifyEvent    = "notifications/event"
	MethodNotifyShutdown = "notifications/shutdown"
)

// Request is a JSON-RPC request. A request without an ID is a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether no response is expected.
func (r *Request) IsNotification() bool { return len(r.ID) == 0 }

// Response is a JSON-RPC response. Exactly one of Result or Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification is a server initiated message without an ID.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Message is the union read off a bidirectional stream. Responses carry an ID
// and no method; notifications carry a method and no ID.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsNotification reports whether m is a server push.
func (m *Message) IsNotification() bool { return m.Method != "" && len(m.ID) == 0 }

// Response converts m into a Response.
func (m *Message) Response() *Response {
	return &Response{JSONRPC: m.JSONRPC, ID: m.ID, Result: m.Result, Error: m.Error}
}

// NewRequest builds a request with a string id and marshalled params.
func NewRequest(id, method string, params any) (*Request, error) {
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	req := &Request{JSONRPC: Version, ID: rawID, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		req.Params = b
	}
	return req, nil
}

// NewResult builds a successful response for id.
func NewResult(id json.RawMessage, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: id, Result: b}, nil
}

// NewErrorResponse builds a failed response for id.
func NewErrorResponse(id json.RawMessage, e *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: e}
}

// NewNotification builds a server push.
func NewNotification(method string, params any) (*Notification, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}
	return &Notification{JSONRPC: Version, Method: method, Params: b}, nil
}

// Decode unmarshals the response result into v, or returns the response error.
func (r *Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if v == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

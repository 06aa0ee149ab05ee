package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/dispatch"
	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/logging"
	"github.com/hupe1980/grantmesh/protocol"
)

// ErrNoEvents is returned by Events when the transport cannot push events.
var ErrNoEvents = errors.New("transport does not deliver events")

// Options configures a Client.
type Options struct {
	// AgentID and AgentType identify the agent. When AgentID is empty the
	// client connects as an observer and skips registration.
	AgentID   string
	AgentType core.AgentType
	Wallet    string

	// Name is reported in the initialize handshake.
	Name string

	Logger logging.Logger
}

// Client is a connected view of a dispatcher for one agent.
type Client struct {
	transport Transport
	opts      Options
	logger    logging.Logger

	mu        sync.RWMutex
	connected bool
}

// New creates a disconnected client over t.
func New(t Transport, optFns ...func(o *Options)) *Client {
	opts := Options{Name: "grantmesh-client"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{transport: t, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// AgentID returns the configured agent id.
func (c *Client) AgentID() string { return c.opts.AgentID }

// IsConnected reports whether Connect has succeeded and Disconnect has not
// been called since.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Connect opens the transport, performs the initialize handshake and
// registers the agent. Calling Connect on a connected client is a no-op.
func (c *Client) Connect(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	if err := c.transport.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = c.transport.Close()
		}
	}()

	var info protocol.InitializeResult
	if err := c.roundTrip(ctx, protocol.MethodInitialize, protocol.InitializeParams{
		ClientName: c.opts.Name,
		AgentID:    c.opts.AgentID,
	}, &info); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if c.opts.AgentID != "" {
		var agent core.AgentInfo
		if err := c.callTool(ctx, dispatch.ActionRegisterAgent, dispatch.RegisterAgentArgs{
			AgentID:   c.opts.AgentID,
			AgentType: c.opts.AgentType,
			Wallet:    c.opts.Wallet,
		}, &agent); err != nil {
			return fmt.Errorf("register agent: %w", err)
		}
	}

	c.connected = true
	c.logger.Info("client connected", "agent_id", c.opts.AgentID, "server", info.ServerName, "protocol", info.ProtocolVersion)
	return nil
}

// Disconnect unregisters the agent and closes the transport. It is a no-op
// on a client that is not connected. An unregister failure does not keep the
// transport open; it is returned after the transport is closed.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false

	var unregErr error
	if c.opts.AgentID != "" {
		var res dispatch.UnregisterResult
		unregErr = c.callTool(ctx, dispatch.ActionUnregisterAgent, dispatch.AgentRef{AgentID: c.opts.AgentID}, &res)
	}
	closeErr := c.transport.Close()

	c.logger.Info("client disconnected", "agent_id", c.opts.AgentID)
	return errors.Join(unregErr, closeErr)
}

// Events returns pushed dispatcher events when the transport supports them.
func (c *Client) Events() (<-chan feed.Event, error) {
	if !c.IsConnected() {
		return nil, core.ErrNotConnected
	}
	src, ok := c.transport.(EventSource)
	if !ok || src.Events() == nil {
		return nil, ErrNoEvents
	}
	return src.Events(), nil
}

// Ping checks the dispatcher is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.roundTrip(ctx, protocol.MethodPing, nil, nil)
}

// ListTools returns the dispatcher's action catalog.
func (c *Client) ListTools(ctx context.Context) ([]protocol.ToolDescriptor, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var out protocol.ListToolsResult
	if err := c.roundTrip(ctx, protocol.MethodToolsList, nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// ListResources returns the dispatcher's view catalog.
func (c *Client) ListResources(ctx context.Context) ([]protocol.ResourceDescriptor, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var out protocol.ListResourcesResult
	if err := c.roundTrip(ctx, protocol.MethodResourcesList, nil, &out); err != nil {
		return nil, err
	}
	return out.Resources, nil
}

// CallTool invokes an action by name and decodes its result into out. The
// configured agent id is attached to the call.
func (c *Client) CallTool(ctx context.Context, name string, args any, out any) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.callTool(ctx, name, args, out)
}

// ReadResource reads a view and decodes its contents into out.
func (c *Client) ReadResource(ctx context.Context, uri string, out any) error {
	if err := c.ready(); err != nil {
		return err
	}
	var res protocol.ReadResourceResult
	if err := c.roundTrip(ctx, protocol.MethodResourcesRead, protocol.ReadResourceParams{
		URI:     uri,
		AgentID: c.opts.AgentID,
	}, &res); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.Contents, out); err != nil {
		return fmt.Errorf("decode %s: %w", uri, err)
	}
	return nil
}

func (c *Client) ready() error {
	if !c.IsConnected() {
		return core.ErrNotConnected
	}
	return nil
}

func (c *Client) callTool(ctx context.Context, name string, args any, out any) error {
	arguments, err := toArguments(args)
	if err != nil {
		return err
	}
	return c.roundTrip(ctx, protocol.MethodToolsCall, protocol.CallToolParams{
		Name:      name,
		Arguments: arguments,
		AgentID:   c.opts.AgentID,
	}, out)
}

func (c *Client) roundTrip(ctx context.Context, method string, params, out any) error {
	req, err := protocol.NewRequest(uuid.NewString(), method, params)
	if err != nil {
		return err
	}
	resp, err := c.transport.Call(ctx, req)
	if err != nil {
		c.logger.Warn("client call failed", "method", method, "error", err)
		return err
	}
	return resp.Decode(out)
}

func toArguments(args any) (map[string]any, error) {
	if args == nil {
		return nil, nil
	}
	if m, ok := args.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	return m, nil
}

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/logging"
	"github.com/hupe1980/grantmesh/metrics"
	"github.com/hupe1980/grantmesh/protocol"
	"github.com/hupe1980/grantmesh/registry"
	"github.com/hupe1980/grantmesh/resource"
	"github.com/hupe1980/grantmesh/tool"
	"golang.org/x/time/rate"
)

// ProtocolVersion is reported by initialize.
const ProtocolVersion = "grantmesh/1"

// Options configures a Dispatcher.
type Options struct {
	// Logger receives boundary logs. Defaults to logging.NoOpLogger.
	Logger logging.Logger
	// Hub delivers events to in-process subscribers. Defaults to a fresh hub.
	Hub *feed.Hub
	// Sinks receive every event in addition to Hub (Redis, ledger).
	Sinks []feed.Sink
	// Metrics records call outcomes. Nil disables metrics.
	Metrics *metrics.Metrics
	// RateLimit is the sustained per-agent call rate. Zero disables limiting.
	RateLimit rate.Limit
	// Burst is the per-agent bucket size.
	Burst int
}

// Dispatcher routes protocol calls. It is safe for concurrent use.
type Dispatcher struct {
	store    core.GrantStore
	registry core.AgentRegistry
	tools    *tool.Registry
	views    *resource.Registry
	logger   logging.Logger
	hub      *feed.Hub
	sink     feed.Sink
	metrics  *metrics.Metrics
	limiter  *agentLimiter
}

// actionLogger is implemented by loggers with a dedicated action call record.
type actionLogger interface {
	LogActionCall(action string, dur time.Duration, success bool, err error)
}

// New wires the built-in actions and views over store and reg.
func New(store core.GrantStore, reg core.AgentRegistry, optFns ...func(o *Options)) (*Dispatcher, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Hub == nil {
		opts.Hub = feed.NewHub()
	}

	d := &Dispatcher{
		store:    store,
		registry: reg,
		logger:   logging.OrNoOp(opts.Logger),
		hub:      opts.Hub,
		sink:     append(feed.Fanout{opts.Hub}, opts.Sinks...),
		metrics:  opts.Metrics,
	}
	if opts.RateLimit > 0 {
		d.limiter = newAgentLimiter(opts.RateLimit, opts.Burst)
	}

	tools, err := tool.NewRegistry(d.actions()...)
	if err != nil {
		return nil, fmt.Errorf("register actions: %w", err)
	}
	views, err := resource.NewRegistry(d.viewList()...)
	if err != nil {
		return nil, fmt.Errorf("register views: %w", err)
	}
	d.tools, d.views = tools, views
	return d, nil
}

// Hub returns the in-process event hub.
func (d *Dispatcher) Hub() *feed.Hub { return d.hub }

// Store returns the backing grant store.
func (d *Dispatcher) Store() core.GrantStore { return d.store }

// Registry returns the backing agent registry.
func (d *Dispatcher) Registry() core.AgentRegistry { return d.registry }

// Handle serves one request. It returns nil for notifications.
func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	var (
		result any
		err    error
	)
	if req.JSONRPC != protocol.Version {
		err = protocol.InvalidRequest(fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC))
	} else {
		result, err = d.route(ctx, req)
	}
	if req.IsNotification() {
		return nil
	}
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.Categorize(err))
	}
	resp, err := protocol.NewResult(req.ID, result)
	if err != nil {
		d.logger.Error("dispatch.encode.error", "method", req.Method, "error", err.Error())
		return protocol.NewErrorResponse(req.ID, protocol.Categorize(err))
	}
	return resp
}

// HandleMessage decodes a raw request, serves it and encodes the response.
// It returns nil for notifications.
func (d *Dispatcher) HandleMessage(ctx context.Context, raw []byte) []byte {
	var req protocol.Request
	var resp *protocol.Response
	if err := json.Unmarshal(raw, &req); err != nil {
		resp = protocol.NewErrorResponse(nil, protocol.ParseError(err))
	} else {
		resp = d.Handle(ctx, &req)
	}
	if resp == nil {
		return nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		b, _ = json.Marshal(protocol.NewErrorResponse(resp.ID, protocol.Categorize(err)))
	}
	return b
}

func (d *Dispatcher) route(ctx context.Context, req *protocol.Request) (any, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		var p protocol.InitializeParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		d.logger.Debug("dispatch.initialize", "client", p.ClientName, "agent_id", p.AgentID)
		return protocol.InitializeResult{
			ServerName:      protocol.ServerName,
			ProtocolVersion: ProtocolVersion,
			Capabilities:    []string{"tools", "resources", "events"},
		}, nil
	case protocol.MethodPing:
		return map[string]string{"status": "ok"}, nil
	case protocol.MethodToolsList:
		return protocol.ListToolsResult{Tools: d.ListTools()}, nil
	case protocol.MethodToolsCall:
		var p protocol.CallToolParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return d.CallTool(ctx, p)
	case protocol.MethodResourcesList:
		return protocol.ListResourcesResult{Resources: d.ListResources()}, nil
	case protocol.MethodResourcesRead:
		var p protocol.ReadResourceParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return d.ReadResource(ctx, p)
	}
	return nil, protocol.MethodNotFound(req.Method)
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: params: %v", core.ErrInvalidArgument, err)
	}
	return nil
}

// ListTools describes every action.
func (d *Dispatcher) ListTools() []protocol.ToolDescriptor { return d.tools.Descriptors() }

// ListResources describes every view.
func (d *Dispatcher) ListResources() []protocol.ResourceDescriptor { return d.views.Descriptors() }

// CallTool runs an action. When p.AgentID names a registered agent its
// activity is refreshed after the call, whatever the outcome.
func (d *Dispatcher) CallTool(ctx context.Context, p protocol.CallToolParams) (any, error) {
	start := time.Now()
	callID := uuid.NewString()
	logger := d.logger

	d.logger.Debug("dispatch.call.start", "method", protocol.MethodToolsCall, "action", p.Name, "agent_id", p.AgentID, "call_id", callID)

	var (
		result any
		err    error
	)
	if !d.limiter.Allow(p.AgentID) {
		err = fmt.Errorf("agent %q: %w", p.AgentID, protocol.ErrRateLimited)
	} else {
		result, err = d.tools.Call(tool.NewContext(ctx, p.AgentID, callID, logger), p.Name, p.Arguments)
		if p.AgentID != "" {
			d.registry.Touch(p.AgentID)
		}
	}

	d.finish(protocol.MethodToolsCall, p.Name, p.AgentID, callID, start, err)
	if al, ok := logger.(actionLogger); ok {
		al.LogActionCall(p.Name, time.Since(start), err == nil, err)
	}
	return result, err
}

// ReadResource renders a view. Views never touch the registry.
func (d *Dispatcher) ReadResource(ctx context.Context, p protocol.ReadResourceParams) (protocol.ReadResourceResult, error) {
	start := time.Now()
	callID := uuid.NewString()

	var (
		result protocol.ReadResourceResult
		err    error
	)
	if !d.limiter.Allow(p.AgentID) {
		err = fmt.Errorf("agent %q: %w", p.AgentID, protocol.ErrRateLimited)
	} else {
		result, err = d.views.Read(ctx, p.URI)
	}

	d.finish(protocol.MethodResourcesRead, d.viewTarget(p.URI), p.AgentID, callID, start, err)
	return result, err
}

func (d *Dispatcher) finish(method, target, agentID, callID string, start time.Time, err error) {
	dur := time.Since(start)
	if err == nil {
		d.metrics.ObserveCall(method, target, metrics.OutcomeOK, dur)
		d.logger.Debug("dispatch.call.success", "method", method, "target", target, "agent_id", agentID, "call_id", callID, "duration_ms", dur.Milliseconds())
		return
	}

	perr := protocol.Categorize(err)
	d.metrics.ObserveCall(method, target, string(perr.Category()), dur)
	args := []any{"method", method, "target", target, "agent_id", agentID, "call_id", callID, "category", string(perr.Category()), "error", err.Error()}
	if perr.Category() == protocol.CategoryInternal {
		d.logger.Error("dispatch.call.error", args...)
		return
	}
	d.logger.Warn("dispatch.call.error", args...)
}

// viewTarget maps a concrete uri to its pattern so metric labels stay bounded.
func (d *Dispatcher) viewTarget(uri string) string {
	res, _, err := d.views.Match(uri)
	if err != nil {
		return "unknown"
	}
	return res.URI()
}

// publish sends ev to every sink. Feed failures never fail the action.
func (d *Dispatcher) publish(ctx context.Context, ev feed.Event) {
	d.metrics.ObserveEvent(string(ev.Type))
	if err := d.sink.Publish(ctx, ev); err != nil {
		d.logger.Warn("dispatch.feed.error", "event", string(ev.Type), "event_id", ev.ID, "error", err.Error())
	}
}

// ReapIdle removes agents idle for longer than threshold (<= 0 uses the
// registry default) and drops their rate limit buckets.
func (d *Dispatcher) ReapIdle(threshold time.Duration) int {
	if threshold <= 0 {
		threshold = registry.DefaultIdleThreshold
	}
	n := d.registry.ReapIdle(threshold)
	d.limiter.Prune(threshold)
	d.metrics.ObserveReaped(n)
	d.metrics.SetAgents(d.registry.Count())
	if n > 0 {
		d.logger.Info("dispatch.reap", "removed", n, "threshold", threshold.String())
	}
	return n
}

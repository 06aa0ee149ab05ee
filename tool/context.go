package tool

import (
	"context"

	"github.com/hupe1980/grantmesh/logging"
)

// Context carries per-call data into an action.
type Context struct {
	context.Context
	agentID string
	callID  string
	logger  logging.Logger
}

// NewContext creates a call context. A nil logger discards output.
func NewContext(ctx context.Context, agentID, callID string, logger logging.Logger) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{Context: ctx, agentID: agentID, callID: callID, logger: logging.OrNoOp(logger)}
}

// AgentID returns the calling agent, or "" for anonymous calls.
func (c *Context) AgentID() string { return c.agentID }

// CallID returns the request identifier used to correlate log lines.
func (c *Context) CallID() string { return c.callID }

// Logger returns the call scoped logger.
func (c *Context) Logger() logging.Logger { return c.logger }

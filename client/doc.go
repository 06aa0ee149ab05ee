// Package client is the agent-side helper for a grantmesh dispatcher.
//
// A Client wraps a Transport (in-process, HTTP or WebSocket), registers the
// agent on Connect and unregisters it on Disconnect. Every typed action and
// view returns core.ErrNotConnected until Connect succeeds.
//
//	c := client.New(client.NewWebSocketTransport("ws://localhost:8080/ws"), func(o *client.Options) {
//		o.AgentID = "tech-1"
//		o.AgentType = core.AgentTypeTechnical
//	})
//	if err := c.Connect(ctx); err != nil { ... }
//	defer c.Disconnect(ctx)
//	res, err := c.CastVote(ctx, core.EvaluationInput{GrantID: 1, AgentType: core.AgentTypeTechnical, Score: 82})
package client

package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/internal/clock"
	"github.com/hupe1980/grantmesh/logging"
	"github.com/hupe1980/grantmesh/metrics"
	"github.com/hupe1980/grantmesh/protocol"
	"github.com/hupe1980/grantmesh/registry"
	"github.com/hupe1980/grantmesh/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fixture struct {
	d     *Dispatcher
	clock *clock.Manual
	store *store.InMemoryStore
	reg   *registry.InMemoryRegistry
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := store.NewInMemoryStore(func(o *store.Options) { o.Clock = clk })
	r := registry.New(func(o *registry.Options) { o.Clock = clk })
	d, err := New(s, r, optFns...)
	require.NoError(t, err)
	return &fixture{d: d, clock: clk, store: s, reg: r}
}

func (f *fixture) rpc(t *testing.T, method string, params any) *protocol.Response {
	t.Helper()
	req, err := protocol.NewRequest("req-1", method, params)
	require.NoError(t, err)
	resp := f.d.Handle(context.Background(), req)
	require.NotNil(t, resp)
	return resp
}

func (f *fixture) call(t *testing.T, name, agentID string, args map[string]any, out any) *protocol.Error {
	t.Helper()
	resp := f.rpc(t, protocol.MethodToolsCall, protocol.CallToolParams{Name: name, Arguments: args, AgentID: agentID})
	if resp.Error != nil {
		return resp.Error
	}
	require.NoError(t, resp.Decode(out))
	return nil
}

func (f *fixture) read(t *testing.T, uri string, out any) *protocol.Error {
	t.Helper()
	resp := f.rpc(t, protocol.MethodResourcesRead, protocol.ReadResourceParams{URI: uri})
	if resp.Error != nil {
		return resp.Error
	}
	var rr protocol.ReadResourceResult
	require.NoError(t, resp.Decode(&rr))
	assert.Equal(t, uri, rr.URI)
	require.NoError(t, json.Unmarshal(rr.Contents, out))
	return nil
}

func (f *fixture) newGrant(t *testing.T, amount float64) core.Grant {
	t.Helper()
	var g core.Grant
	require.Nil(t, f.call(t, ActionNotifyNewGrant, "", map[string]any{
		"title": "Indexer", "description": "Build an indexer", "amount": amount,
	}, &g))
	return g
}

func vote(grantID int64, agentType core.AgentType, score float64) map[string]any {
	return map[string]any{"grant_id": grantID, "agent_type": string(agentType), "score": score, "reasoning": "because"}
}

func TestDispatcher_Discovery(t *testing.T) {
	f := newFixture(t)

	var tools protocol.ListToolsResult
	require.NoError(t, f.rpc(t, protocol.MethodToolsList, nil).Decode(&tools))
	names := make([]string, len(tools.Tools))
	for i, tl := range tools.Tools {
		names[i] = tl.Name
		assert.Equal(t, "object", tl.InputSchema["type"])
	}
	assert.ElementsMatch(t, []string{
		ActionNotifyNewGrant, ActionCastAgentVote, ActionGetEvaluationStatus, ActionGetGrantDetails,
		ActionBroadcastMessage, ActionRegisterAgent, ActionUnregisterAgent, ActionSetAgentStatus, ActionUpdateGrantStatus,
	}, names)

	var resources protocol.ListResourcesResult
	require.NoError(t, f.rpc(t, protocol.MethodResourcesList, nil).Decode(&resources))
	assert.Len(t, resources.Resources, 8)

	var init protocol.InitializeResult
	require.NoError(t, f.rpc(t, protocol.MethodInitialize, protocol.InitializeParams{ClientName: "test"}).Decode(&init))
	assert.Equal(t, protocol.ServerName, init.ServerName)
	assert.Equal(t, ProtocolVersion, init.ProtocolVersion)

	assert.Nil(t, f.rpc(t, protocol.MethodPing, nil).Error)
}

func TestDispatcher_EnvelopeErrors(t *testing.T) {
	f := newFixture(t)

	resp := f.rpc(t, "grants/delete", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeMethodNotFound, resp.Error.Code)

	out := f.d.HandleMessage(context.Background(), []byte(`{not json`))
	var parsed protocol.Response
	require.NoError(t, json.Unmarshal(out, &parsed))
	require.NotNil(t, parsed.Error)
	assert.Equal(t, protocol.CodeParseError, parsed.Error.Code)

	out = f.d.HandleMessage(context.Background(), []byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`))
	require.NoError(t, json.Unmarshal(out, &parsed))
	assert.Equal(t, protocol.CodeInvalidRequest, parsed.Error.Code)
	assert.JSONEq(t, `1`, string(parsed.ID))

	out = f.d.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"ping"}`))
	assert.Nil(t, out)

	out = f.d.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":"x","method":"tools/call","params":[1]}`))
	require.NoError(t, json.Unmarshal(out, &parsed))
	assert.Equal(t, protocol.CategoryInvalidArgument, parsed.Error.Category())
}

func TestDispatcher_ConsensusScenarios(t *testing.T) {
	tests := []struct {
		name     string
		scores   []float64
		approved bool
		approval int
	}{
		{"approved", []float64{80, 75, 60, 40, 90}, true, 3},
		{"too few approvals", []float64{80, 75, 60, 40, 10}, false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			g := f.newGrant(t, 1.0)

			var last CastVoteResult
			for i, score := range tt.scores {
				require.Nil(t, f.call(t, ActionCastAgentVote, "", vote(g.ID, core.AgentTypes[i], score), &last))
			}
			assert.Equal(t, tt.approval, last.VotingResult.ApprovalCount)
			assert.Equal(t, tt.approved, last.VotingResult.Approved)
			assert.False(t, last.VotingResult.Finalized)
			assert.Len(t, last.VotingResult.Votes, 5)

			stored, err := f.store.GetVotingResult(g.ID)
			require.NoError(t, err)
			assert.Equal(t, last.VotingResult, stored)
		})
	}
}

func TestDispatcher_CastVoteErrors(t *testing.T) {
	f := newFixture(t)

	perr := f.call(t, ActionCastAgentVote, "", vote(99, core.AgentTypeTechnical, 50), nil)
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CategoryNotFound, perr.Category())
	assert.ErrorIs(t, perr, core.ErrNotFound)
	assert.Empty(t, f.store.ListAllEvaluations())

	g := f.newGrant(t, 10)
	for _, args := range []map[string]any{
		vote(g.ID, core.AgentTypeTechnical, 101),
		vote(g.ID, core.AgentTypeTechnical, -1),
		vote(g.ID, "oracle", 50),
		{"grant_id": g.ID, "agent_type": "technical", "score": 50},
		{"grant_id": "one", "agent_type": "technical", "score": 50, "reasoning": "x"},
	} {
		perr := f.call(t, ActionCastAgentVote, "", args, nil)
		require.NotNil(t, perr, "%v", args)
		assert.Equal(t, protocol.CategoryInvalidArgument, perr.Category(), "%v", args)
	}
	assert.Empty(t, f.store.ListEvaluations(g.ID))

	perr = f.call(t, "launch_rocket", "", nil, nil)
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CategoryNotFound, perr.Category())
}

func TestDispatcher_NotifyNewGrantValidation(t *testing.T) {
	f := newFixture(t)
	for _, args := range []map[string]any{
		{"description": "d", "amount": 1},
		{"title": "", "description": "d", "amount": 1},
		{"title": "t", "description": "d", "amount": -5},
		{"title": "t", "description": "d"},
	} {
		perr := f.call(t, ActionNotifyNewGrant, "", args, nil)
		require.NotNil(t, perr, "%v", args)
		assert.Equal(t, protocol.CategoryInvalidArgument, perr.Category())
	}
	assert.Empty(t, f.store.ListGrants())

	g := f.newGrant(t, 0)
	assert.Equal(t, int64(1), g.ID)
	assert.Equal(t, core.GrantStatusPending, g.Status)
}

func TestDispatcher_AgentActivity(t *testing.T) {
	f := newFixture(t)

	var info core.AgentInfo
	require.Nil(t, f.call(t, ActionRegisterAgent, "", map[string]any{"agent_id": "tech-1", "agent_type": "technical"}, &info))
	assert.Equal(t, core.AgentStatusActive, info.Status)
	registeredAt := info.LastActivity

	g := f.newGrant(t, 5)
	f.clock.Advance(time.Minute)

	var res CastVoteResult
	require.Nil(t, f.call(t, ActionCastAgentVote, "tech-1", vote(g.ID, core.AgentTypeTechnical, 88), &res))

	got, err := f.reg.Get("tech-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.EvaluationsCount)
	assert.True(t, got.LastActivity.After(registeredAt))

	// failed calls still refresh activity
	f.clock.Advance(time.Minute)
	require.NotNil(t, f.call(t, ActionGetGrantDetails, "tech-1", map[string]any{"grant_id": 404}, nil))
	after, _ := f.reg.Get("tech-1")
	assert.Equal(t, f.clock.Now(), after.LastActivity)

	// views never touch the registry
	f.clock.Advance(time.Minute)
	resp := f.rpc(t, protocol.MethodResourcesRead, protocol.ReadResourceParams{URI: ViewAllGrants, AgentID: "tech-1"})
	require.Nil(t, resp.Error)
	unchanged, _ := f.reg.Get("tech-1")
	assert.Equal(t, after.LastActivity, unchanged.LastActivity)

	// unknown agent ids are ignored
	require.Nil(t, f.call(t, ActionGetGrantDetails, "ghost", map[string]any{"grant_id": g.ID}, &GrantDetails{}))
	assert.Equal(t, 1, f.reg.Count())
}

func TestDispatcher_AgentLifecycleActions(t *testing.T) {
	f := newFixture(t)

	perr := f.call(t, ActionSetAgentStatus, "", map[string]any{"agent_id": "nobody", "status": "busy"}, nil)
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CategoryNotFound, perr.Category())

	require.Nil(t, f.call(t, ActionRegisterAgent, "", map[string]any{"agent_id": "b-1", "agent_type": "budget", "wallet": "0xabc"}, &core.AgentInfo{}))

	var info core.AgentInfo
	require.Nil(t, f.call(t, ActionSetAgentStatus, "", map[string]any{"agent_id": "b-1", "status": "busy"}, &info))
	assert.Equal(t, core.AgentStatusBusy, info.Status)
	assert.Equal(t, "0xabc", info.Wallet)

	perr = f.call(t, ActionSetAgentStatus, "", map[string]any{"agent_id": "b-1", "status": "asleep"}, nil)
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CategoryInvalidArgument, perr.Category())

	var un UnregisterResult
	require.Nil(t, f.call(t, ActionUnregisterAgent, "", map[string]any{"agent_id": "b-1"}, &un))
	assert.True(t, un.Removed)
	require.Nil(t, f.call(t, ActionUnregisterAgent, "", map[string]any{"agent_id": "b-1"}, &un))
	assert.False(t, un.Removed)
	assert.Equal(t, 0, f.reg.Count())
}

func TestDispatcher_EvaluationStatusAndLifecycle(t *testing.T) {
	f := newFixture(t)
	g := f.newGrant(t, 100)

	var status EvaluationStatus
	require.Nil(t, f.call(t, ActionGetEvaluationStatus, "", map[string]any{"grant_id": g.ID}, &status))
	assert.Equal(t, 0, status.EvaluationCount)
	assert.Empty(t, status.VotedAgentTypes)
	assert.Equal(t, core.AgentTypes, status.MissingAgentTypes)
	assert.Nil(t, status.VotingResult)

	require.Nil(t, f.call(t, ActionCastAgentVote, "", vote(g.ID, core.AgentTypeBudget, 72), &CastVoteResult{}))
	require.Nil(t, f.call(t, ActionCastAgentVote, "", vote(g.ID, core.AgentTypeBudget, 64), &CastVoteResult{}))

	require.Nil(t, f.call(t, ActionGetEvaluationStatus, "", map[string]any{"grant_id": g.ID}, &status))
	assert.Equal(t, core.GrantStatusUnderReview, status.Status)
	assert.Equal(t, 2, status.EvaluationCount)
	assert.Equal(t, []core.AgentType{core.AgentTypeBudget}, status.VotedAgentTypes)
	assert.Len(t, status.MissingAgentTypes, 4)
	require.NotNil(t, status.VotingResult)
	assert.Equal(t, 68.0, status.VotingResult.AverageScore)

	perr := f.call(t, ActionUpdateGrantStatus, "", map[string]any{"grant_id": g.ID, "status": "completed"}, nil)
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CategoryInvalidArgument, perr.Category())

	var updated core.Grant
	require.Nil(t, f.call(t, ActionUpdateGrantStatus, "", map[string]any{"grant_id": g.ID, "status": "approved"}, &updated))
	assert.Equal(t, core.GrantStatusApproved, updated.Status)
	require.NotNil(t, updated.UpdatedAt)

	perr = f.call(t, ActionUpdateGrantStatus, "", map[string]any{"grant_id": 77, "status": "approved"}, nil)
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CategoryNotFound, perr.Category())
}

func TestDispatcher_FeedEvents(t *testing.T) {
	var ledger []feed.EventType
	f := newFixture(t, func(o *Options) {
		o.Sinks = []feed.Sink{feed.SinkFunc(func(_ context.Context, ev feed.Event) error {
			ledger = append(ledger, ev.Type)
			return nil
		})}
	})
	sub := f.d.Hub().Subscribe(16, nil)
	defer sub.Close()

	g := f.newGrant(t, 1)
	require.Nil(t, f.call(t, ActionCastAgentVote, "", vote(g.ID, core.AgentTypeTeam, 90), &CastVoteResult{}))

	var br BroadcastResult
	require.Nil(t, f.call(t, ActionBroadcastMessage, "team-1", map[string]any{"message": "hello", "topic": "general"}, &br))
	assert.Equal(t, 1, br.Delivered)
	assert.NotEmpty(t, br.MessageID)

	want := []feed.EventType{
		feed.EventGrantCreated,
		feed.EventGrantStatusChanged,
		feed.EventEvaluationAdded,
		feed.EventVotingUpdated,
		feed.EventAgentMessage,
	}
	assert.Equal(t, want, ledger)

	var got []feed.Event
	for range want {
		got = append(got, <-sub.C())
	}
	msg := got[len(got)-1]
	assert.Equal(t, br.MessageID, msg.ID)
	assert.Equal(t, "team-1", msg.AgentID)
	assert.Equal(t, "general", msg.Topic)
	assert.Equal(t, g.ID, got[0].GrantID)
}

func TestDispatcher_FeedFailureDoesNotFailAction(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Sinks = []feed.Sink{feed.SinkFunc(func(context.Context, feed.Event) error { return core.ErrTransport })}
	})
	g := f.newGrant(t, 3)
	assert.Equal(t, int64(1), g.ID)
}

func TestDispatcher_RateLimit(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.RateLimit = rate.Every(time.Hour)
		o.Burst = 2
	})
	args := map[string]any{"grant_id": 1}

	for i := 0; i < 2; i++ {
		perr := f.call(t, ActionGetGrantDetails, "spammer", args, nil)
		require.NotNil(t, perr)
		assert.Equal(t, protocol.CategoryNotFound, perr.Category())
	}
	perr := f.call(t, ActionGetGrantDetails, "spammer", args, nil)
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CategoryRateLimited, perr.Category())
	assert.ErrorIs(t, perr, protocol.ErrRateLimited)

	// anonymous and other agents are unaffected
	require.NotNil(t, f.call(t, ActionGetGrantDetails, "", args, nil))
	assert.Equal(t, protocol.CategoryNotFound, f.call(t, ActionGetGrantDetails, "other", args, nil).Category())
}

func TestDispatcher_ReapIdle(t *testing.T) {
	m := metrics.New()
	f := newFixture(t, func(o *Options) { o.Metrics = m })

	f.reg.Register("old", core.AgentTypeTeam, "")
	f.clock.Advance(20 * time.Minute)
	f.reg.Register("fresh", core.AgentTypeTeam, "")
	f.clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, f.d.ReapIdle(0))
	_, err := f.reg.Get("old")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.reg.Get("fresh")
	assert.NoError(t, err)
}

func TestDispatcher_BoundaryLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := logging.DefaultLoggerConfig()
	cfg.Output = buf
	cfg.Level = logging.LogLevelWarn
	f := newFixture(t, func(o *Options) { o.Logger = logging.NewLogger(cfg) })

	require.NotNil(t, f.call(t, ActionGetGrantDetails, "", map[string]any{"grant_id": 5}, nil))
	assert.Contains(t, buf.String(), `"msg":"dispatch.call.error"`)
	assert.Contains(t, buf.String(), `"category":"NOT_FOUND"`)
	assert.Contains(t, buf.String(), `"msg":"Action execution failed"`)
}

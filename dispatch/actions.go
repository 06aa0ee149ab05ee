package dispatch

import (
	"errors"
	"fmt"

	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/tool"
)

// Action names.
const (
	ActionNotifyNewGrant      = "notify_new_grant"
	ActionCastAgentVote       = "cast_agent_vote"
	ActionGetEvaluationStatus = "get_evaluation_status"
	ActionGetGrantDetails     = "get_grant_details"
	ActionBroadcastMessage    = "broadcast_message"
	ActionRegisterAgent       = "register_agent"
	ActionUnregisterAgent     = "unregister_agent"
	ActionSetAgentStatus      = "set_agent_status"
	ActionUpdateGrantStatus   = "update_grant_status"
)

// NotifyNewGrantArgs are the notify_new_grant arguments.
type NotifyNewGrantArgs struct {
	Title       string  `json:"title" minLength:"1" description:"Short grant title"`
	Description string  `json:"description" description:"What the grant funds"`
	Amount      float64 `json:"amount" minimum:"0" description:"Requested amount"`
	Applicant   string  `json:"applicant,omitempty" description:"Applicant identity"`
}

// CastAgentVoteArgs are the cast_agent_vote arguments.
type CastAgentVoteArgs struct {
	GrantID         int64          `json:"grant_id" minimum:"1"`
	AgentType       core.AgentType `json:"agent_type" enum:"technical,ecosystem,budget,team,sentiment"`
	Score           float64        `json:"score" minimum:"0" maximum:"100" description:"Score from 0 to 100"`
	Reasoning       string         `json:"reasoning" description:"Why the agent scored this way"`
	Concerns        []string       `json:"concerns,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	AgentID         string         `json:"agent_id,omitempty" description:"Registered agent casting the vote"`
}

// GrantRef identifies a grant.
type GrantRef struct {
	GrantID int64 `json:"grant_id" minimum:"1"`
}

// BroadcastMessageArgs are the broadcast_message arguments.
type BroadcastMessageArgs struct {
	Message string `json:"message" minLength:"1"`
	From    string `json:"from,omitempty"`
	Topic   string `json:"topic,omitempty"`
}

// RegisterAgentArgs are the register_agent arguments.
type RegisterAgentArgs struct {
	AgentID   string         `json:"agent_id" minLength:"1"`
	AgentType core.AgentType `json:"agent_type" enum:"technical,ecosystem,budget,team,sentiment"`
	Wallet    string         `json:"wallet,omitempty"`
}

// AgentRef identifies an agent.
type AgentRef struct {
	AgentID string `json:"agent_id" minLength:"1"`
}

// SetAgentStatusArgs are the set_agent_status arguments.
type SetAgentStatusArgs struct {
	AgentID string           `json:"agent_id" minLength:"1"`
	Status  core.AgentStatus `json:"status" enum:"active,inactive,busy"`
}

// UpdateGrantStatusArgs are the update_grant_status arguments.
type UpdateGrantStatusArgs struct {
	GrantID int64            `json:"grant_id" minimum:"1"`
	Status  core.GrantStatus `json:"status" enum:"pending,under_review,approved,rejected,active,completed"`
}

func (d *Dispatcher) actions() []tool.Tool {
	return []tool.Tool{
		tool.NewTypedTool(ActionNotifyNewGrant, "Submit a new grant for evaluation.", d.notifyNewGrant),
		tool.NewTypedTool(ActionCastAgentVote, "Record an agent's evaluation of a grant and recompute its voting result.", d.castAgentVote),
		tool.NewTypedTool(ActionGetEvaluationStatus, "Report which agent types have evaluated a grant and the current voting result.", d.getEvaluationStatus),
		tool.NewTypedTool(ActionGetGrantDetails, "Return a grant with its evaluations and voting result.", d.getGrantDetails),
		tool.NewTypedTool(ActionBroadcastMessage, "Broadcast a message to every connected agent.", d.broadcastMessage),
		tool.NewTypedTool(ActionRegisterAgent, "Register the calling agent.", d.registerAgent),
		tool.NewTypedTool(ActionUnregisterAgent, "Remove an agent from the registry.", d.unregisterAgent),
		tool.NewTypedTool(ActionSetAgentStatus, "Set an agent's status.", d.setAgentStatus),
		tool.NewTypedTool(ActionUpdateGrantStatus, "Move a grant along its lifecycle.", d.updateGrantStatus),
	}
}

func (d *Dispatcher) notifyNewGrant(tc *tool.Context, in NotifyNewGrantArgs) (any, error) {
	g := d.store.CreateGrant(core.GrantInput{
		Title:       in.Title,
		Description: in.Description,
		Applicant:   in.Applicant,
		Amount:      in.Amount,
	})

	ev := feed.NewEvent(feed.EventGrantCreated, g)
	ev.GrantID, ev.AgentID = g.ID, tc.AgentID()
	d.publish(tc, ev)
	return g, nil
}

func (d *Dispatcher) castAgentVote(tc *tool.Context, in CastAgentVoteArgs) (any, error) {
	if !in.AgentType.Valid() {
		return nil, fmt.Errorf("%w: unknown agent type %q", core.ErrInvalidArgument, in.AgentType)
	}
	if err := core.ValidateScore(in.Score); err != nil {
		return nil, err
	}
	g, err := d.store.GetGrant(in.GrantID)
	if err != nil {
		return nil, err
	}

	eval := d.store.AddEvaluation(core.EvaluationInput{
		GrantID:         in.GrantID,
		AgentType:       in.AgentType,
		Score:           in.Score,
		Reasoning:       in.Reasoning,
		Concerns:        in.Concerns,
		Recommendations: in.Recommendations,
	})
	result := d.store.ComputeVotingResult(in.GrantID)
	d.metrics.ObserveVotingResult(result.Approved)

	agentID := in.AgentID
	if agentID == "" {
		agentID = tc.AgentID()
	}
	if agentID != "" {
		d.registry.RecordEvaluation(agentID)
	}

	// The first evaluation opens the review.
	if g.Status == core.GrantStatusPending {
		if _, err := d.store.TransitionGrantStatus(g.ID, core.GrantStatusPending, core.GrantStatusUnderReview); err == nil {
			d.publishStatusChange(tc, g.ID, core.GrantStatusPending, core.GrantStatusUnderReview, agentID)
		}
	}

	ev := feed.NewEvent(feed.EventEvaluationAdded, eval)
	ev.GrantID, ev.AgentID = in.GrantID, agentID
	d.publish(tc, ev)

	ev = feed.NewEvent(feed.EventVotingUpdated, result)
	ev.GrantID, ev.AgentID = in.GrantID, agentID
	d.publish(tc, ev)

	return CastVoteResult{Evaluation: eval, VotingResult: result}, nil
}

func (d *Dispatcher) getEvaluationStatus(_ *tool.Context, in GrantRef) (any, error) {
	g, err := d.store.GetGrant(in.GrantID)
	if err != nil {
		return nil, err
	}
	evals := d.store.ListEvaluations(in.GrantID)

	voted := make(map[core.AgentType]bool, len(core.AgentTypes))
	for _, e := range evals {
		voted[e.AgentType] = true
	}
	status := EvaluationStatus{
		GrantID:           g.ID,
		Status:            g.Status,
		EvaluationCount:   len(evals),
		VotedAgentTypes:   []core.AgentType{},
		MissingAgentTypes: []core.AgentType{},
		VotingResult:      d.votingResult(in.GrantID),
	}
	for _, t := range core.AgentTypes {
		if voted[t] {
			status.VotedAgentTypes = append(status.VotedAgentTypes, t)
		} else {
			status.MissingAgentTypes = append(status.MissingAgentTypes, t)
		}
	}
	return status, nil
}

func (d *Dispatcher) getGrantDetails(_ *tool.Context, in GrantRef) (any, error) {
	return d.grantDetails(in.GrantID)
}

func (d *Dispatcher) grantDetails(id int64) (GrantDetails, error) {
	g, err := d.store.GetGrant(id)
	if err != nil {
		return GrantDetails{}, err
	}
	return GrantDetails{
		Grant:        g,
		Evaluations:  d.store.ListEvaluations(id),
		VotingResult: d.votingResult(id),
	}, nil
}

func (d *Dispatcher) votingResult(id int64) *core.VotingResult {
	r, err := d.store.GetVotingResult(id)
	if err != nil {
		return nil
	}
	return &r
}

func (d *Dispatcher) broadcastMessage(tc *tool.Context, in BroadcastMessageArgs) (any, error) {
	from := in.From
	if from == "" {
		from = tc.AgentID()
	}
	ev := feed.NewEvent(feed.EventAgentMessage, map[string]string{"from": from, "message": in.Message})
	ev.AgentID, ev.Topic = from, in.Topic

	delivered := d.hub.Subscribers()
	d.publish(tc, ev)
	return BroadcastResult{MessageID: ev.ID, Delivered: delivered}, nil
}

func (d *Dispatcher) registerAgent(tc *tool.Context, in RegisterAgentArgs) (any, error) {
	if !in.AgentType.Valid() {
		return nil, fmt.Errorf("%w: unknown agent type %q", core.ErrInvalidArgument, in.AgentType)
	}
	info := d.registry.Register(in.AgentID, in.AgentType, in.Wallet)
	d.metrics.SetAgents(d.registry.Count())

	ev := feed.NewEvent(feed.EventAgentRegistered, info)
	ev.AgentID = info.ID
	d.publish(tc, ev)
	return info, nil
}

func (d *Dispatcher) unregisterAgent(tc *tool.Context, in AgentRef) (any, error) {
	removed := d.registry.Unregister(in.AgentID)
	d.metrics.SetAgents(d.registry.Count())
	if removed {
		ev := feed.NewEvent(feed.EventAgentUnregistered, nil)
		ev.AgentID = in.AgentID
		d.publish(tc, ev)
	}
	return UnregisterResult{AgentID: in.AgentID, Removed: removed}, nil
}

func (d *Dispatcher) setAgentStatus(_ *tool.Context, in SetAgentStatusArgs) (any, error) {
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown agent status %q", core.ErrInvalidArgument, in.Status)
	}
	if !d.registry.SetStatus(in.AgentID, in.Status) {
		return nil, fmt.Errorf("agent %q: %w", in.AgentID, core.ErrNotFound)
	}
	return d.registry.Get(in.AgentID)
}

// ErrInvalidTransition is returned when a status change skips the lifecycle.
var ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", core.ErrInvalidArgument)

func (d *Dispatcher) updateGrantStatus(tc *tool.Context, in UpdateGrantStatusArgs) (any, error) {
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown grant status %q", core.ErrInvalidArgument, in.Status)
	}
	g, err := d.store.GetGrant(in.GrantID)
	if err != nil {
		return nil, err
	}
	if !g.Status.CanTransitionTo(in.Status) {
		return nil, fmt.Errorf("grant %d from %s to %s: %w", g.ID, g.Status, in.Status, ErrInvalidTransition)
	}
	updated, err := d.store.TransitionGrantStatus(g.ID, g.Status, in.Status)
	if errors.Is(err, core.ErrStatusConflict) {
		return nil, fmt.Errorf("grant %d to %s: %w", g.ID, in.Status, errors.Join(ErrInvalidTransition, err))
	}
	if err != nil {
		return nil, err
	}
	d.publishStatusChange(tc, g.ID, g.Status, in.Status, tc.AgentID())
	return updated, nil
}

func (d *Dispatcher) publishStatusChange(tc *tool.Context, id int64, from, to core.GrantStatus, agentID string) {
	ev := feed.NewEvent(feed.EventGrantStatusChanged, map[string]core.GrantStatus{"from": from, "to": to})
	ev.GrantID, ev.AgentID = id, agentID
	d.publish(tc, ev)
}

// IsInvalidTransition reports whether err is a rejected lifecycle move.
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrInvalidTransition) }

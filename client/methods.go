package client

import (
	"context"

	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/dispatch"
)

// NotifyNewGrant submits a grant.
func (c *Client) NotifyNewGrant(ctx context.Context, in core.GrantInput) (core.Grant, error) {
	var g core.Grant
	err := c.CallTool(ctx, dispatch.ActionNotifyNewGrant, dispatch.NotifyNewGrantArgs{
		Title:       in.Title,
		Description: in.Description,
		Amount:      in.Amount,
		Applicant:   in.Applicant,
	}, &g)
	return g, err
}

// CastVote records an evaluation as this agent. An empty AgentType defaults
// to the client's own type.
func (c *Client) CastVote(ctx context.Context, in core.EvaluationInput) (dispatch.CastVoteResult, error) {
	if in.AgentType == "" {
		in.AgentType = c.opts.AgentType
	}
	var res dispatch.CastVoteResult
	err := c.CallTool(ctx, dispatch.ActionCastAgentVote, dispatch.CastAgentVoteArgs{
		GrantID:         in.GrantID,
		AgentType:       in.AgentType,
		Score:           in.Score,
		Reasoning:       in.Reasoning,
		Concerns:        in.Concerns,
		Recommendations: in.Recommendations,
		AgentID:         c.opts.AgentID,
	}, &res)
	return res, err
}

func (c *Client) GetEvaluationStatus(ctx context.Context, grantID int64) (dispatch.EvaluationStatus, error) {
	var res dispatch.EvaluationStatus
	err := c.CallTool(ctx, dispatch.ActionGetEvaluationStatus, dispatch.GrantRef{GrantID: grantID}, &res)
	return res, err
}

func (c *Client) GetGrantDetails(ctx context.Context, grantID int64) (dispatch.GrantDetails, error) {
	var res dispatch.GrantDetails
	err := c.CallTool(ctx, dispatch.ActionGetGrantDetails, dispatch.GrantRef{GrantID: grantID}, &res)
	return res, err
}

// BroadcastMessage sends message to every connected agent.
func (c *Client) BroadcastMessage(ctx context.Context, message, topic string) (dispatch.BroadcastResult, error) {
	var res dispatch.BroadcastResult
	err := c.CallTool(ctx, dispatch.ActionBroadcastMessage, dispatch.BroadcastMessageArgs{
		Message: message,
		From:    c.opts.AgentID,
		Topic:   topic,
	}, &res)
	return res, err
}

// SetStatus updates this agent's registry status.
func (c *Client) SetStatus(ctx context.Context, status core.AgentStatus) (core.AgentInfo, error) {
	var res core.AgentInfo
	err := c.CallTool(ctx, dispatch.ActionSetAgentStatus, dispatch.SetAgentStatusArgs{
		AgentID: c.opts.AgentID,
		Status:  status,
	}, &res)
	return res, err
}

func (c *Client) UpdateGrantStatus(ctx context.Context, grantID int64, status core.GrantStatus) (core.Grant, error) {
	var g core.Grant
	err := c.CallTool(ctx, dispatch.ActionUpdateGrantStatus, dispatch.UpdateGrantStatusArgs{
		GrantID: grantID,
		Status:  status,
	}, &g)
	return g, err
}

func (c *Client) PendingGrants(ctx context.Context) ([]core.Grant, error) {
	return c.grants(ctx, dispatch.ViewPendingGrants)
}

func (c *Client) GrantsUnderReview(ctx context.Context) ([]core.Grant, error) {
	return c.grants(ctx, dispatch.ViewGrantsUnderReview)
}

func (c *Client) AllGrants(ctx context.Context) ([]core.Grant, error) {
	return c.grants(ctx, dispatch.ViewAllGrants)
}

func (c *Client) grants(ctx context.Context, uri string) ([]core.Grant, error) {
	var out []core.Grant
	err := c.ReadResource(ctx, uri, &out)
	return out, err
}

// Grant reads the grants://{id} view.
func (c *Client) Grant(ctx context.Context, grantID int64) (dispatch.GrantDetails, error) {
	var res dispatch.GrantDetails
	err := c.ReadResource(ctx, dispatch.GrantURI(grantID), &res)
	return res, err
}

// RecentEvaluations reads the newest evaluations. A limit <= 0 uses the
// server default.
func (c *Client) RecentEvaluations(ctx context.Context, limit int) ([]core.Evaluation, error) {
	var out []core.Evaluation
	err := c.ReadResource(ctx, dispatch.RecentEvaluationsURI(limit), &out)
	return out, err
}

func (c *Client) GrantEvaluations(ctx context.Context, grantID int64) ([]core.Evaluation, error) {
	var out []core.Evaluation
	err := c.ReadResource(ctx, dispatch.GrantEvaluationsURI(grantID), &out)
	return out, err
}

// VotingResult reads the cached voting result of a grant. It returns
// core.ErrNotFound until the grant has received a vote.
func (c *Client) VotingResult(ctx context.Context, grantID int64) (core.VotingResult, error) {
	var res core.VotingResult
	err := c.ReadResource(ctx, dispatch.VotingResultURI(grantID), &res)
	return res, err
}

func (c *Client) AgentActivity(ctx context.Context) (dispatch.AgentActivity, error) {
	var res dispatch.AgentActivity
	err := c.ReadResource(ctx, dispatch.ViewAgentActivity, &res)
	return res, err
}

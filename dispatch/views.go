package dispatch

import (
	"context"
	"fmt"

	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/resource"
	"github.com/hupe1980/grantmesh/store"
)

// View URIs.
const (
	ViewPendingGrants     = "grants://pending"
	ViewGrantsUnderReview = "grants://under_review"
	ViewAllGrants         = "grants://all"
	ViewGrant             = "grants://{id}"
	ViewRecentEvaluations = "evaluations://recent"
	ViewGrantEvaluations  = "evaluations://grant/{id}"
	ViewVotingResult      = "voting://grant/{id}"
	ViewAgentActivity     = "agents://activity"
)

// GrantURI expands ViewGrant for id.
func GrantURI(id int64) string { return fmt.Sprintf("grants://%d", id) }

// GrantEvaluationsURI expands ViewGrantEvaluations for id.
func GrantEvaluationsURI(id int64) string { return fmt.Sprintf("evaluations://grant/%d", id) }

// VotingResultURI expands ViewVotingResult for id.
func VotingResultURI(id int64) string { return fmt.Sprintf("voting://grant/%d", id) }

// RecentEvaluationsURI expands ViewRecentEvaluations with an optional limit.
func RecentEvaluationsURI(limit int) string {
	if limit <= 0 {
		return ViewRecentEvaluations
	}
	return fmt.Sprintf("%s?limit=%d", ViewRecentEvaluations, limit)
}

func (d *Dispatcher) viewList() []resource.Resource {
	return []resource.Resource{
		resource.NewFuncResource(ViewPendingGrants, "pending_grants", "Grants waiting for evaluation.",
			func(context.Context, resource.Params) (any, error) {
				return d.store.ListGrantsByStatus(core.GrantStatusPending), nil
			}),
		resource.NewFuncResource(ViewGrantsUnderReview, "grants_under_review", "Grants currently being evaluated.",
			func(context.Context, resource.Params) (any, error) {
				return d.store.ListGrantsByStatus(core.GrantStatusUnderReview), nil
			}),
		resource.NewFuncResource(ViewAllGrants, "all_grants", "Every grant in creation order.",
			func(context.Context, resource.Params) (any, error) {
				return d.store.ListGrants(), nil
			}),
		resource.NewFuncResource(ViewGrant, "grant", "A grant with its evaluations and voting result.",
			func(_ context.Context, p resource.Params) (any, error) {
				id, err := p.Int64("id")
				if err != nil {
					return nil, err
				}
				return d.grantDetails(id)
			}),
		resource.NewFuncResource(ViewRecentEvaluations, "recent_evaluations", "Most recent evaluations across all grants (?limit=N).",
			func(_ context.Context, p resource.Params) (any, error) {
				limit, err := p.QueryInt("limit", store.DefaultRecentLimit)
				if err != nil {
					return nil, err
				}
				return d.store.ListRecentEvaluations(limit), nil
			}),
		resource.NewFuncResource(ViewGrantEvaluations, "grant_evaluations", "Evaluations of one grant in submission order.",
			func(_ context.Context, p resource.Params) (any, error) {
				id, err := p.Int64("id")
				if err != nil {
					return nil, err
				}
				if _, err := d.store.GetGrant(id); err != nil {
					return nil, err
				}
				return d.store.ListEvaluations(id), nil
			}),
		resource.NewFuncResource(ViewVotingResult, "voting_result", "Current voting result of one grant.",
			func(_ context.Context, p resource.Params) (any, error) {
				id, err := p.Int64("id")
				if err != nil {
					return nil, err
				}
				return d.store.GetVotingResult(id)
			}),
		resource.NewFuncResource(ViewAgentActivity, "agent_activity", "Connected agents and their activity.",
			func(context.Context, resource.Params) (any, error) {
				return d.agentActivity(), nil
			}),
	}
}

func (d *Dispatcher) agentActivity() AgentActivity {
	agents := d.registry.List()
	byType := make(map[core.AgentType]int, len(core.AgentTypes))
	for _, t := range core.AgentTypes {
		byType[t] = 0
	}
	for _, a := range agents {
		byType[a.Type]++
	}
	return AgentActivity{Total: len(agents), ByType: byType, Agents: agents}
}

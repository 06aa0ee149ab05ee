package dispatch

import "github.com/hupe1980/grantmesh/core"

// CastVoteResult is returned by cast_agent_vote.
type CastVoteResult struct {
	Evaluation   core.Evaluation   `json:"evaluation"`
	VotingResult core.VotingResult `json:"voting_result"`
}

// EvaluationStatus is returned by get_evaluation_status.
type EvaluationStatus struct {
	GrantID           int64              `json:"grant_id"`
	Status            core.GrantStatus   `json:"status"`
	EvaluationCount   int                `json:"evaluation_count"`
	VotedAgentTypes   []core.AgentType   `json:"voted_agent_types"`
	MissingAgentTypes []core.AgentType   `json:"missing_agent_types"`
	VotingResult      *core.VotingResult `json:"voting_result,omitempty"`
}

// GrantDetails is returned by get_grant_details and grants://{id}.
type GrantDetails struct {
	Grant        core.Grant         `json:"grant"`
	Evaluations  []core.Evaluation  `json:"evaluations"`
	VotingResult *core.VotingResult `json:"voting_result,omitempty"`
}

// BroadcastResult is returned by broadcast_message.
type BroadcastResult struct {
	MessageID string `json:"message_id"`
	Delivered int    `json:"delivered"`
}

// UnregisterResult is returned by unregister_agent.
type UnregisterResult struct {
	AgentID string `json:"agent_id"`
	Removed bool   `json:"removed"`
}

// AgentActivity is the agents://activity view.
type AgentActivity struct {
	Total  int                    `json:"total"`
	ByType map[core.AgentType]int `json:"by_type"`
	Agents []core.AgentInfo       `json:"agents"`
}

package core

import "time"

// GrantStore owns grants, their evaluations and the derived voting results.
// Implementations must be safe for concurrent use and return copies so callers
// never observe a partially applied write.
type GrantStore interface {
	CreateGrant(in GrantInput) Grant
	GetGrant(id int64) (Grant, error)
	ListGrants() []Grant
	ListGrantsByStatus(status GrantStatus) []Grant
	UpdateGrantStatus(id int64, status GrantStatus) error
	TransitionGrantStatus(id int64, from, to GrantStatus) (Grant, error)

	AddEvaluation(in EvaluationInput) Evaluation
	ListEvaluations(grantID int64) []Evaluation
	ListAllEvaluations() []Evaluation
	ListRecentEvaluations(limit int) []Evaluation
	HasEvaluationFrom(grantID int64, agentType AgentType) bool
	GetEvaluationFrom(grantID int64, agentType AgentType) (Evaluation, error)

	ComputeVotingResult(grantID int64) VotingResult
	GetVotingResult(grantID int64) (VotingResult, error)

	Reset()
}

// AgentRegistry tracks connected evaluator agents. Mutators on unknown agent
// ids are no-ops and report false.
type AgentRegistry interface {
	Register(id string, agentType AgentType, wallet string) AgentInfo
	Unregister(id string) bool
	Touch(id string) bool
	SetStatus(id string, status AgentStatus) bool
	RecordEvaluation(id string) bool

	Get(id string) (AgentInfo, error)
	List() []AgentInfo
	ListByType(agentType AgentType) []AgentInfo
	ListByStatus(status AgentStatus) []AgentInfo
	Count() int
	CountByType(agentType AgentType) int

	ReapIdle(threshold time.Duration) int
}

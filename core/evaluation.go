package core

import (
	"fmt"
	"math"
	"time"
)

// AgentType is one of the fixed evaluator roles.
type AgentType string

const (
	AgentTypeTechnical AgentType = "technical"
	AgentTypeEcosystem AgentType = "ecosystem"
	AgentTypeBudget    AgentType = "budget"
	AgentTypeTeam      AgentType = "team"
	AgentTypeSentiment AgentType = "sentiment"
)

// AgentTypes is the closed set of evaluator roles.
var AgentTypes = []AgentType{
	AgentTypeTechnical,
	AgentTypeEcosystem,
	AgentTypeBudget,
	AgentTypeTeam,
	AgentTypeSentiment,
}

// Valid reports whether t belongs to the closed set of evaluator roles.
func (t AgentType) Valid() bool {
	for _, known := range AgentTypes {
		if t == known {
			return true
		}
	}
	return false
}

const (
	// MinScore and MaxScore bound an evaluation score (inclusive).
	MinScore = 0.0
	MaxScore = 100.0
)

// ValidateScore returns ErrInvalidArgument when score is outside [0,100].
func ValidateScore(score float64) error {
	if score < MinScore || score > MaxScore || math.IsNaN(score) {
		return fmt.Errorf("%w: score %v outside [%v,%v]", ErrInvalidArgument, score, MinScore, MaxScore)
	}
	return nil
}

// EvaluationInput carries the caller supplied fields of a new evaluation.
type EvaluationInput struct {
	GrantID         int64     `json:"grant_id"`
	AgentType       AgentType `json:"agent_type"`
	Score           float64   `json:"score"`
	Reasoning       string    `json:"reasoning"`
	Concerns        []string  `json:"concerns,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
}

// Evaluation is one agent's assessment of one grant. Evaluations are append
// only; the store never mutates or deletes them.
type Evaluation struct {
	ID              int64     `json:"id"`
	GrantID         int64     `json:"grant_id"`
	AgentType       AgentType `json:"agent_type"`
	Score           float64   `json:"score"`
	Reasoning       string    `json:"reasoning"`
	Concerns        []string  `json:"concerns,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Clone returns a deep copy of the evaluation.
func (e Evaluation) Clone() Evaluation {
	e.Concerns = cloneStrings(e.Concerns)
	e.Recommendations = cloneStrings(e.Recommendations)
	return e
}

// Vote is the projection of an evaluation used by consensus.
type Vote struct {
	AgentType AgentType `json:"agent_type"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// VotingResult is the derived consensus snapshot for a grant. It is a cache:
// it can always be recomputed from the grant's evaluations.
type VotingResult struct {
	GrantID       int64   `json:"grant_id"`
	TotalScore    float64 `json:"total_score"`
	AverageScore  float64 `json:"average_score"`
	ApprovalCount int     `json:"approval_count"`
	Votes         []Vote  `json:"votes"`
	Finalized     bool    `json:"finalized"`
	Approved      bool    `json:"approved"`
}

// Clone returns a deep copy of the result.
func (r VotingResult) Clone() VotingResult {
	votes := make([]Vote, len(r.Votes))
	copy(votes, r.Votes)
	r.Votes = votes
	return r
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

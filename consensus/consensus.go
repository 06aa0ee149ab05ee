// Package consensus turns a grant's accumulated evaluations into a voting
// result. It is pure: the same evaluation list always yields an identical
// result, and it never fails.
package consensus

import "github.com/hupe1980/grantmesh/core"

const (
	// ApprovalThreshold is the per-agent score at or above which a vote
	// counts as an approval.
	ApprovalThreshold = 70.0

	// MinApprovals is the absolute number of approving votes required. It is a
	// literal (majority of the five evaluator roles) and is deliberately not
	// derived from how many agents are registered.
	MinApprovals = 3

	// MinAverageScore is the minimum mean score across all votes.
	MinAverageScore = 50.0
)

// Tally holds the aggregate figures of a vote list.
type Tally struct {
	Count         int
	TotalScore    float64
	AverageScore  float64
	ApprovalCount int
}

// Approved applies the decision rule: at least MinApprovals approvals and an
// average of at least MinAverageScore. Both conditions are mandatory.
func (t Tally) Approved() bool {
	return t.ApprovalCount >= MinApprovals && t.AverageScore >= MinAverageScore
}

// Votes projects evaluations to votes in their given order.
func Votes(evals []core.Evaluation) []core.Vote {
	votes := make([]core.Vote, 0, len(evals))
	for _, e := range evals {
		votes = append(votes, core.Vote{AgentType: e.AgentType, Score: e.Score, Timestamp: e.CreatedAt})
	}
	return votes
}

// TallyVotes aggregates votes. Duplicate agent types each count fully.
func TallyVotes(votes []core.Vote) Tally {
	t := Tally{Count: len(votes)}
	for _, v := range votes {
		t.TotalScore += v.Score
		if v.Score >= ApprovalThreshold {
			t.ApprovalCount++
		}
	}
	if t.Count > 0 {
		t.AverageScore = t.TotalScore / float64(t.Count)
	}
	return t
}

// Compute builds the voting result for grantID from its evaluations.
// Finalized is always false; finalization is an external act.
func Compute(grantID int64, evals []core.Evaluation) core.VotingResult {
	votes := Votes(evals)
	t := TallyVotes(votes)
	return core.VotingResult{
		GrantID:       grantID,
		TotalScore:    t.TotalScore,
		AverageScore:  t.AverageScore,
		ApprovalCount: t.ApprovalCount,
		Votes:         votes,
		Finalized:     false,
		Approved:      t.Approved(),
	}
}

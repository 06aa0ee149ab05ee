package testutil

import (
	"time"

	"github.com/hupe1980/grantmesh/core"
)

// BaseTime is the deterministic instant builders stamp evaluations from.
var BaseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// GrantBuilder constructs grant inputs with fluent chaining.
//
//	in := NewGrant().Title("Indexer").Amount(5000).Input()
type GrantBuilder struct {
	in core.GrantInput
}

// NewGrant creates a builder with a placeholder title and description.
func NewGrant() *GrantBuilder {
	return &GrantBuilder{in: core.GrantInput{Title: "grant", Description: "description", Amount: 1}}
}

func (b *GrantBuilder) Title(t string) *GrantBuilder       { b.in.Title = t; return b }
func (b *GrantBuilder) Description(d string) *GrantBuilder { b.in.Description = d; return b }
func (b *GrantBuilder) Applicant(a string) *GrantBuilder   { b.in.Applicant = a; return b }
func (b *GrantBuilder) Amount(a float64) *GrantBuilder     { b.in.Amount = a; return b }

// Input returns the built core.GrantInput.
func (b *GrantBuilder) Input() core.GrantInput { return b.in }

// Create stores the grant in s.
func (b *GrantBuilder) Create(s core.GrantStore) core.Grant { return s.CreateGrant(b.in) }

// EvaluationBuilder constructs evaluation inputs with fluent chaining.
type EvaluationBuilder struct {
	in core.EvaluationInput
}

// NewEvaluation creates a technical evaluation of grantID.
func NewEvaluation(grantID int64) *EvaluationBuilder {
	return &EvaluationBuilder{in: core.EvaluationInput{GrantID: grantID, AgentType: core.AgentTypeTechnical}}
}

func (b *EvaluationBuilder) Type(t core.AgentType) *EvaluationBuilder { b.in.AgentType = t; return b }
func (b *EvaluationBuilder) Score(s float64) *EvaluationBuilder       { b.in.Score = s; return b }
func (b *EvaluationBuilder) Reasoning(r string) *EvaluationBuilder    { b.in.Reasoning = r; return b }

// Concerns appends concerns (chainable).
func (b *EvaluationBuilder) Concerns(c ...string) *EvaluationBuilder {
	b.in.Concerns = append(b.in.Concerns, c...)
	return b
}

// Recommendations appends recommendations (chainable).
func (b *EvaluationBuilder) Recommendations(r ...string) *EvaluationBuilder {
	b.in.Recommendations = append(b.in.Recommendations, r...)
	return b
}

// Input returns the built core.EvaluationInput.
func (b *EvaluationBuilder) Input() core.EvaluationInput { return b.in }

// Add stores the evaluation in s.
func (b *EvaluationBuilder) Add(s core.GrantStore) core.Evaluation { return s.AddEvaluation(b.in) }

// Evaluations returns one evaluation of grantID per score, cycling through
// core.AgentTypes and spacing CreatedAt one second apart from BaseTime.
func Evaluations(grantID int64, scores ...float64) []core.Evaluation {
	evals := make([]core.Evaluation, len(scores))
	for i, s := range scores {
		evals[i] = core.Evaluation{
			ID:        int64(i + 1),
			GrantID:   grantID,
			AgentType: core.AgentTypes[i%len(core.AgentTypes)],
			Score:     s,
			CreatedAt: BaseTime.Add(time.Duration(i) * time.Second),
		}
	}
	return evals
}

// SeedVotes adds one evaluation per score to grantID in s, cycling through
// core.AgentTypes, and returns what the store recorded.
func SeedVotes(s core.GrantStore, grantID int64, scores ...float64) []core.Evaluation {
	out := make([]core.Evaluation, 0, len(scores))
	for i, score := range scores {
		out = append(out, NewEvaluation(grantID).
			Type(core.AgentTypes[i%len(core.AgentTypes)]).
			Score(score).
			Add(s))
	}
	return out
}

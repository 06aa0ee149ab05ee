// Package evaluator implements the reference evaluator agent: it watches the
// dispatcher for grants its agent type has not yet scored, asks a Scorer for
// an assessment and casts the vote.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/dispatch"
	"github.com/hupe1980/grantmesh/internal/util"
	"github.com/hupe1980/grantmesh/logging"
	"github.com/hupe1980/grantmesh/model"
)

// ErrNoAssessment is returned when a model reply holds no JSON object.
var ErrNoAssessment = errors.New("no assessment in model reply")

// Assessment is one agent's verdict on a grant.
type Assessment struct {
	Score           float64  `json:"score"`
	Reasoning       string   `json:"reasoning"`
	Concerns        []string `json:"concerns,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Scorer produces an assessment of a grant from one agent type's viewpoint.
type Scorer interface {
	Score(ctx context.Context, agentType core.AgentType, details dispatch.GrantDetails) (Assessment, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, agentType core.AgentType, details dispatch.GrantDetails) (Assessment, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, agentType core.AgentType, details dispatch.GrantDetails) (Assessment, error) {
	return f(ctx, agentType, details)
}

// StaticScorer returns the same assessment for every grant.
type StaticScorer struct {
	Value     float64
	Reasoning string
}

// Score implements Scorer.
func (s StaticScorer) Score(context.Context, core.AgentType, dispatch.GrantDetails) (Assessment, error) {
	reasoning := s.Reasoning
	if reasoning == "" {
		reasoning = fmt.Sprintf("static score %.0f", s.Value)
	}
	return Assessment{Score: s.Value, Reasoning: reasoning}, nil
}

// Focus describes what each agent type looks at.
var Focus = map[core.AgentType]string{
	core.AgentTypeTechnical: "technical feasibility, architecture and delivery risk",
	core.AgentTypeEcosystem: "benefit to the wider ecosystem and overlap with existing work",
	core.AgentTypeBudget:    "whether the requested amount is justified and well allocated",
	core.AgentTypeTeam:      "the applicant's track record and ability to deliver",
	core.AgentTypeSentiment: "community sentiment and reputational risk",
}

// DefaultPrompt is the prompt template used by ModelScorer.
const DefaultPrompt = `You are the {{.AgentType}} evaluator on a grant committee.
Focus on {{.Focus}}.

Grant #{{.Grant.ID}}: {{.Grant.Title}}
Applicant: {{default "unknown" .Grant.Applicant}}
Requested amount: {{money .Grant.Amount}}

{{.Grant.Description}}
{{if .Evaluations}}
Evaluations so far:
{{range .Evaluations}}- {{.AgentType}}: {{.Score}}{{if .Concerns}} (concerns: {{join "; " .Concerns}}){{end}}
{{end}}{{end}}
Reply with one JSON object and nothing else:
{"score": <0-100>, "reasoning": "<one paragraph>", "concerns": ["..."], "recommendations": ["..."]}`

// DefaultSystem is the system instruction used by ModelScorer.
const DefaultSystem = "You are a careful, impartial grant reviewer. Scores of 70 or more mean you approve."

// ModelScorerOptions configures a ModelScorer.
type ModelScorerOptions struct {
	Prompt string
	System string
	Logger logging.Logger
}

// ModelScorer asks a language model for an assessment.
type ModelScorer struct {
	model model.Model
	opts  ModelScorerOptions
}

// NewModelScorer creates a ModelScorer backed by m.
func NewModelScorer(m model.Model, optFns ...func(o *ModelScorerOptions)) *ModelScorer {
	opts := ModelScorerOptions{Prompt: DefaultPrompt, System: DefaultSystem}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &ModelScorer{model: m, opts: opts}
}

type modelLogger interface {
	LogModelCall(model string, dur time.Duration, success bool, err error)
}

// Score implements Scorer.
func (s *ModelScorer) Score(ctx context.Context, agentType core.AgentType, details dispatch.GrantDetails) (Assessment, error) {
	prompt, err := util.RenderTemplate(s.opts.Prompt, map[string]any{
		"AgentType":   agentType,
		"Focus":       Focus[agentType],
		"Grant":       details.Grant,
		"Evaluations": details.Evaluations,
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("render prompt: %w", err)
	}

	start := time.Now()
	resp, err := s.model.Generate(ctx, model.UserPrompt(s.opts.System, prompt))
	if ml, ok := s.opts.Logger.(modelLogger); ok {
		ml.LogModelCall(s.model.Info().Name, time.Since(start), err == nil, err)
	}
	if err != nil {
		return Assessment{}, err
	}
	return ParseAssessment(resp.Text)
}

// ParseAssessment extracts the first JSON object from text and validates
// its score.
func ParseAssessment(text string) (Assessment, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Assessment{}, ErrNoAssessment
	}

	var a Assessment
	if err := json.Unmarshal([]byte(text[start:end+1]), &a); err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrNoAssessment, err)
	}
	if err := core.ValidateScore(a.Score); err != nil {
		return Assessment{}, err
	}
	a.Reasoning = strings.TrimSpace(a.Reasoning)
	return a, nil
}

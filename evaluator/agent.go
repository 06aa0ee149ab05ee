package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/grantmesh/client"
	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/logging"
)

// Options configures an Agent.
type Options struct {
	// PollInterval is the fallback rescan period when no event arrives.
	PollInterval time.Duration
	Logger       logging.Logger
}

// Agent scores every open grant once for its client's agent type.
type Agent struct {
	client    *client.Client
	agentType core.AgentType
	scorer    Scorer
	opts      Options
	logger    logging.Logger

	mu    sync.Mutex
	voted map[int64]bool
}

// New creates an Agent voting as agentType through c. The client must be
// registered under the same type.
func New(c *client.Client, agentType core.AgentType, s Scorer, optFns ...func(o *Options)) *Agent {
	opts := Options{PollInterval: 10 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{
		client:    c,
		agentType: agentType,
		scorer:    s,
		opts:      opts,
		logger:    logging.OrNoOp(opts.Logger),
		voted:     make(map[int64]bool),
	}
}

// RunOnce scans pending and under-review grants and votes on those this
// agent type has not yet evaluated. It returns the number of votes cast.
// A failed grant does not stop the scan; its error is joined into the result.
func (a *Agent) RunOnce(ctx context.Context) (int, error) {
	pending, err := a.client.PendingGrants(ctx)
	if err != nil {
		return 0, err
	}
	review, err := a.client.GrantsUnderReview(ctx)
	if err != nil {
		return 0, err
	}

	var (
		cast int
		errs []error
	)
	for _, g := range append(pending, review...) {
		if a.hasVoted(g.ID) {
			continue
		}
		ok, err := a.evaluate(ctx, g.ID)
		if err != nil {
			if ctx.Err() != nil {
				return cast, ctx.Err()
			}
			a.logger.Warn("evaluator.grant.failed", "grant_id", g.ID, "error", err)
			errs = append(errs, fmt.Errorf("grant %d: %w", g.ID, err))
			continue
		}
		if ok {
			cast++
		}
	}
	return cast, errors.Join(errs...)
}

func (a *Agent) evaluate(ctx context.Context, grantID int64) (bool, error) {
	details, err := a.client.Grant(ctx, grantID)
	if err != nil {
		return false, err
	}
	for _, e := range details.Evaluations {
		if e.AgentType == a.agentType {
			a.markVoted(grantID)
			return false, nil
		}
	}

	assessment, err := a.scorer.Score(ctx, a.agentType, details)
	if err != nil {
		return false, fmt.Errorf("score: %w", err)
	}

	res, err := a.client.CastVote(ctx, core.EvaluationInput{
		GrantID:         grantID,
		AgentType:       a.agentType,
		Score:           assessment.Score,
		Reasoning:       assessment.Reasoning,
		Concerns:        assessment.Concerns,
		Recommendations: assessment.Recommendations,
	})
	if err != nil {
		return false, err
	}
	a.markVoted(grantID)
	a.logger.Info("evaluator.vote.cast",
		"grant_id", grantID,
		"score", assessment.Score,
		"approvals", res.VotingResult.ApprovalCount,
		"approved", res.VotingResult.Approved,
	)
	return true, nil
}

// Run scans immediately, then again on every grant.created event and every
// PollInterval until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	events, err := a.client.Events()
	if err != nil && !errors.Is(err, client.ErrNoEvents) {
		return err
	}

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := a.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("evaluator.scan.failed", "error", err)
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				break wait
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if ev.Type == feed.EventGrantCreated {
					break wait
				}
			}
		}
	}
}

func (a *Agent) hasVoted(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.voted[id]
}

func (a *Agent) markVoted(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.voted[id] = true
}

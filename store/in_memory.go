package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/grantmesh/consensus"
	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/internal/clock"
)

// DefaultRecentLimit is used by ListRecentEvaluations when limit <= 0.
const DefaultRecentLimit = 10

// Options configures an InMemoryStore.
type Options struct {
	// Clock stamps CreatedAt / UpdatedAt. Defaults to the system clock.
	Clock clock.Clock
}

// InMemoryStore is a volatile GrantStore. It is safe for concurrent access.
type InMemoryStore struct {
	mu          sync.RWMutex
	clock       clock.Clock
	grantSeq    clock.Sequence
	evalSeq     clock.Sequence
	grants      map[int64]*core.Grant
	grantOrder  []int64
	evaluations map[int64][]core.Evaluation
	results     map[int64]core.VotingResult
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{Clock: clock.System{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &InMemoryStore{clock: opts.Clock}
	s.resetLocked()
	return s
}

// CreateGrant assigns the next identifier, sets status pending and stamps the
// creation time. It never fails.
func (s *InMemoryStore) CreateGrant(in core.GrantInput) core.Grant {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := &core.Grant{
		ID:          s.grantSeq.Next(),
		Title:       in.Title,
		Description: in.Description,
		Applicant:   in.Applicant,
		Amount:      in.Amount,
		Status:      core.GrantStatusPending,
		CreatedAt:   s.clock.Now(),
	}
	s.grants[g.ID] = g
	s.grantOrder = append(s.grantOrder, g.ID)
	return g.Clone()
}

// GetGrant returns a copy of the grant or an error wrapping core.ErrNotFound.
func (s *InMemoryStore) GetGrant(id int64) (core.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	if !ok {
		return core.Grant{}, grantNotFound(id)
	}
	return g.Clone(), nil
}

// ListGrants returns all grants in creation order.
func (s *InMemoryStore) ListGrants() []core.Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Grant, 0, len(s.grantOrder))
	for _, id := range s.grantOrder {
		out = append(out, s.grants[id].Clone())
	}
	return out
}

// ListGrantsByStatus returns the grants currently in status, in creation order.
func (s *InMemoryStore) ListGrantsByStatus(status core.GrantStatus) []core.Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Grant{}
	for _, id := range s.grantOrder {
		if g := s.grants[id]; g.Status == status {
			out = append(out, g.Clone())
		}
	}
	return out
}

// UpdateGrantStatus overwrites the status unconditionally and refreshes
// UpdatedAt. Transition legality is not checked here.
func (s *InMemoryStore) UpdateGrantStatus(id int64, status core.GrantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return grantNotFound(id)
	}
	now := s.clock.Now()
	g.Status = status
	g.UpdatedAt = &now
	return nil
}

// TransitionGrantStatus moves the grant from one status to another in a single
// step. It fails with core.ErrStatusConflict when the current status is no
// longer from, leaving the grant untouched.
func (s *InMemoryStore) TransitionGrantStatus(id int64, from, to core.GrantStatus) (core.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return core.Grant{}, grantNotFound(id)
	}
	if g.Status != from {
		return g.Clone(), fmt.Errorf("grant %d is %s, not %s: %w", id, g.Status, from, core.ErrStatusConflict)
	}
	now := s.clock.Now()
	g.Status = to
	g.UpdatedAt = &now
	return g.Clone(), nil
}

// AddEvaluation appends a new evaluation to its grant's list and returns the
// stored copy. Consensus is not recomputed; call ComputeVotingResult.
func (s *InMemoryStore) AddEvaluation(in core.EvaluationInput) core.Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := core.Evaluation{
		ID:              s.evalSeq.Next(),
		GrantID:         in.GrantID,
		AgentType:       in.AgentType,
		Score:           in.Score,
		Reasoning:       in.Reasoning,
		Concerns:        in.Concerns,
		Recommendations: in.Recommendations,
		CreatedAt:       s.clock.Now(),
	}
	e = e.Clone()
	s.evaluations[in.GrantID] = append(s.evaluations[in.GrantID], e)
	return e.Clone()
}

// ListEvaluations returns the grant's evaluations in insertion order. A grant
// without evaluations (or an unknown grant) yields an empty slice.
func (s *InMemoryStore) ListEvaluations(grantID int64) []core.Evaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEvaluations(s.evaluations[grantID])
}

// ListAllEvaluations concatenates the evaluation lists of every grant. Order
// across grants is unspecified.
func (s *InMemoryStore) ListAllEvaluations() []core.Evaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allLocked()
}

// ListRecentEvaluations returns up to limit evaluations, newest first.
func (s *InMemoryStore) ListRecentEvaluations(limit int) []core.Evaluation {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	s.mu.RLock()
	all := s.allLocked()
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// HasEvaluationFrom reports whether agentType has evaluated grantID.
func (s *InMemoryStore) HasEvaluationFrom(grantID int64, agentType core.AgentType) bool {
	_, err := s.GetEvaluationFrom(grantID, agentType)
	return err == nil
}

// GetEvaluationFrom returns the first evaluation (insertion order) of grantID
// by agentType.
func (s *InMemoryStore) GetEvaluationFrom(grantID int64, agentType core.AgentType) (core.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.evaluations[grantID] {
		if e.AgentType == agentType {
			return e.Clone(), nil
		}
	}
	return core.Evaluation{}, fmt.Errorf("evaluation of grant %d by %s: %w", grantID, agentType, core.ErrNotFound)
}

// ComputeVotingResult recomputes consensus from the grant's current
// evaluations, replaces any stored result and returns it. A grant without
// evaluations gets an empty result that is returned but not stored.
func (s *InMemoryStore) ComputeVotingResult(grantID int64) core.VotingResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	evals := s.evaluations[grantID]
	r := consensus.Compute(grantID, evals)
	if len(evals) > 0 {
		s.results[grantID] = r
	}
	return r.Clone()
}

// GetVotingResult returns the last computed result for the grant.
func (s *InMemoryStore) GetVotingResult(grantID int64) (core.VotingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[grantID]
	if !ok {
		return core.VotingResult{}, fmt.Errorf("voting result for grant %d: %w", grantID, core.ErrNotFound)
	}
	return r.Clone(), nil
}

// Reset clears all state and rewinds both identifier sequences to 1. Intended
// for test isolation only.
func (s *InMemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// resetLocked reinitialises the maps; caller must hold the write lock (or be
// the constructor).
func (s *InMemoryStore) resetLocked() {
	s.grants = make(map[int64]*core.Grant)
	s.grantOrder = nil
	s.evaluations = make(map[int64][]core.Evaluation)
	s.results = make(map[int64]core.VotingResult)
	s.grantSeq.Reset()
	s.evalSeq.Reset()
}

func (s *InMemoryStore) allLocked() []core.Evaluation {
	out := []core.Evaluation{}
	for _, evals := range s.evaluations {
		for _, e := range evals {
			out = append(out, e.Clone())
		}
	}
	return out
}

func cloneEvaluations(in []core.Evaluation) []core.Evaluation {
	out := make([]core.Evaluation, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

func grantNotFound(id int64) error {
	return fmt.Errorf("grant %d: %w", id, core.ErrNotFound)
}

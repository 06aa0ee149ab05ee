// Package registry tracks which evaluator agents are connected, what role they
// play, and when they were last active.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/internal/clock"
)

// DefaultIdleThreshold is applied by ReapIdle when threshold <= 0.
const DefaultIdleThreshold = 30 * time.Minute

// Options configures an InMemoryRegistry.
type Options struct {
	// Clock stamps connection and activity times. Defaults to the system clock.
	Clock clock.Clock
}

// InMemoryRegistry is a volatile AgentRegistry guarded by one RWMutex. A
// secondary index from agent type to agent ids keeps type scoped queries O(1).
type InMemoryRegistry struct {
	mu     sync.RWMutex
	clock  clock.Clock
	agents map[string]*core.AgentInfo
	byType map[core.AgentType]map[string]struct{}
}

// New constructs an empty registry.
func New(optFns ...func(o *Options)) *InMemoryRegistry {
	opts := Options{Clock: clock.System{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryRegistry{
		clock:  opts.Clock,
		agents: make(map[string]*core.AgentInfo),
		byType: make(map[core.AgentType]map[string]struct{}),
	}
}

// Register stores a fresh record for id, replacing any existing one. The new
// record is active, its timestamps are reset and its evaluation count starts
// at zero.
func (r *InMemoryRegistry) Register(id string, agentType core.AgentType, wallet string) core.AgentInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.agents[id]; ok {
		r.unindexLocked(id, prev.Type)
	}

	now := r.clock.Now()
	info := &core.AgentInfo{
		ID:           id,
		Type:         agentType,
		Wallet:       wallet,
		Status:       core.AgentStatusActive,
		ConnectedAt:  now,
		LastActivity: now,
	}
	r.agents[id] = info

	set, ok := r.byType[agentType]
	if !ok {
		set = make(map[string]struct{})
		r.byType[agentType] = set
	}
	set[id] = struct{}{}

	return *info
}

// Unregister removes the agent and its type index entry. It reports whether
// a record existed.
func (r *InMemoryRegistry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

// Touch refreshes the agent's last activity time.
func (r *InMemoryRegistry) Touch(id string) bool {
	return r.update(id, func(*core.AgentInfo) {})
}

// SetStatus changes the agent's status and refreshes its activity.
func (r *InMemoryRegistry) SetStatus(id string, status core.AgentStatus) bool {
	return r.update(id, func(a *core.AgentInfo) { a.Status = status })
}

// RecordEvaluation increments the agent's evaluation counter and refreshes
// its activity.
func (r *InMemoryRegistry) RecordEvaluation(id string) bool {
	return r.update(id, func(a *core.AgentInfo) { a.EvaluationsCount++ })
}

// Get returns a copy of the agent record.
func (r *InMemoryRegistry) Get(id string) (core.AgentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return core.AgentInfo{}, fmt.Errorf("agent %q: %w", id, core.ErrNotFound)
	}
	return *a, nil
}

// List returns every registered agent ordered by id.
func (r *InMemoryRegistry) List() []core.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.AgentInfo, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	return sortByID(out)
}

// ListByType returns the agents of one role ordered by id.
func (r *InMemoryRegistry) ListByType(agentType core.AgentType) []core.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byType[agentType]
	out := make([]core.AgentInfo, 0, len(set))
	for id := range set {
		out = append(out, *r.agents[id])
	}
	return sortByID(out)
}

// ListByStatus returns the agents currently in status ordered by id.
func (r *InMemoryRegistry) ListByStatus(status core.AgentStatus) []core.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []core.AgentInfo{}
	for _, a := range r.agents {
		if a.Status == status {
			out = append(out, *a)
		}
	}
	return sortByID(out)
}

// Count returns the number of registered agents.
func (r *InMemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// CountByType returns the number of registered agents of one role.
func (r *InMemoryRegistry) CountByType(agentType core.AgentType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[agentType])
}

// ReapIdle unregisters every agent whose last activity is strictly older than
// threshold and returns how many were removed. The id set is snapshotted
// first; each candidate is re-checked under the write lock so an agent that
// registers or reports activity mid-scan survives.
func (r *InMemoryRegistry) ReapIdle(threshold time.Duration) int {
	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}

	r.mu.RLock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	removed := 0
	for _, id := range ids {
		r.mu.Lock()
		if a, ok := r.agents[id]; ok && r.clock.Now().Sub(a.LastActivity) > threshold {
			r.removeLocked(id)
			removed++
		}
		r.mu.Unlock()
	}
	return removed
}

func (r *InMemoryRegistry) update(id string, fn func(a *core.AgentInfo)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	fn(a)
	a.LastActivity = r.clock.Now()
	return true
}

// removeLocked deletes id from both maps; caller must hold the write lock.
func (r *InMemoryRegistry) removeLocked(id string) bool {
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	delete(r.agents, id)
	r.unindexLocked(id, a.Type)
	return true
}

func (r *InMemoryRegistry) unindexLocked(id string, agentType core.AgentType) {
	set, ok := r.byType[agentType]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.byType, agentType)
	}
}

func sortByID(agents []core.AgentInfo) []core.AgentInfo {
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

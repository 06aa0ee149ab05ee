package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/internal/clock"
)

// Interface compliance (compile-time assertion)
var _ core.AgentRegistry = (*InMemoryRegistry)(nil)

var epoch = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestRegistry() (*InMemoryRegistry, *clock.Manual) {
	clk := clock.NewManual(epoch)
	return New(func(o *Options) { o.Clock = clk }), clk
}

func TestRegistry_RegisterThenGet(t *testing.T) {
	r, _ := newTestRegistry()
	r.Register("tech-1", core.AgentTypeTechnical, "0xabc")

	a, err := r.Get("tech-1")
	require.NoError(t, err)
	assert.Equal(t, core.AgentStatusActive, a.Status)
	assert.Equal(t, 0, a.EvaluationsCount)
	assert.Equal(t, "0xabc", a.Wallet)
	assert.Equal(t, epoch, a.ConnectedAt)
	assert.Equal(t, epoch, a.LastActivity)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r, _ := newTestRegistry()
	_, err := r.Get("ghost")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	r, _ := newTestRegistry()
	assert.NotPanics(t, func() { assert.False(t, r.Unregister("ghost")) })
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_TypeIndex(t *testing.T) {
	r, _ := newTestRegistry()
	r.Register("b", core.AgentTypeBudget, "")
	r.Register("a", core.AgentTypeBudget, "")
	r.Register("t", core.AgentTypeTeam, "")

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, 2, r.CountByType(core.AgentTypeBudget))
	assert.Equal(t, 0, r.CountByType(core.AgentTypeSentiment))

	budget := r.ListByType(core.AgentTypeBudget)
	require.Len(t, budget, 2)
	assert.Equal(t, "a", budget[0].ID)
	assert.Equal(t, "b", budget[1].ID)

	// Re-registering under a different role moves the index entry.
	r.Register("a", core.AgentTypeSentiment, "")
	assert.Equal(t, 1, r.CountByType(core.AgentTypeBudget))
	assert.Equal(t, 1, r.CountByType(core.AgentTypeSentiment))
	assert.Equal(t, 3, r.Count())

	assert.True(t, r.Unregister("b"))
	assert.Empty(t, r.ListByType(core.AgentTypeBudget))
}

func TestRegistry_ActivityMutators(t *testing.T) {
	r, clk := newTestRegistry()
	r.Register("x", core.AgentTypeEcosystem, "")

	t1 := clk.Advance(time.Minute)
	assert.True(t, r.Touch("x"))
	a, _ := r.Get("x")
	assert.Equal(t, t1, a.LastActivity)

	t2 := clk.Advance(time.Minute)
	assert.True(t, r.SetStatus("x", core.AgentStatusBusy))
	a, _ = r.Get("x")
	assert.Equal(t, core.AgentStatusBusy, a.Status)
	assert.Equal(t, t2, a.LastActivity)

	t3 := clk.Advance(time.Minute)
	assert.True(t, r.RecordEvaluation("x"))
	assert.True(t, r.RecordEvaluation("x"))
	a, _ = r.Get("x")
	assert.Equal(t, 2, a.EvaluationsCount)
	assert.Equal(t, t3, a.LastActivity)
	assert.Equal(t, epoch, a.ConnectedAt)

	assert.False(t, r.Touch("ghost"))
	assert.False(t, r.SetStatus("ghost", core.AgentStatusBusy))
	assert.False(t, r.RecordEvaluation("ghost"))

	busy := r.ListByStatus(core.AgentStatusBusy)
	require.Len(t, busy, 1)
	assert.Empty(t, r.ListByStatus(core.AgentStatusInactive))
}

func TestRegistry_ReRegistrationResetsCounters(t *testing.T) {
	r, clk := newTestRegistry()
	r.Register("x", core.AgentTypeTeam, "")
	r.RecordEvaluation("x")
	r.SetStatus("x", core.AgentStatusBusy)

	later := clk.Advance(time.Hour)
	r.Register("x", core.AgentTypeTeam, "")
	a, _ := r.Get("x")
	assert.Equal(t, 0, a.EvaluationsCount)
	assert.Equal(t, core.AgentStatusActive, a.Status)
	assert.Equal(t, later, a.ConnectedAt)
}

func TestRegistry_ReapIdle(t *testing.T) {
	r, clk := newTestRegistry()
	r.Register("old", core.AgentTypeTeam, "")
	clk.Advance(20 * time.Minute)
	r.Register("fresh", core.AgentTypeTeam, "")
	clk.Advance(11 * time.Minute)

	// old: 31m idle, fresh: 11m idle.
	assert.Equal(t, 1, r.ReapIdle(0))
	_, err := r.Get("old")
	assert.Error(t, err)
	_, err = r.Get("fresh")
	assert.NoError(t, err)
	assert.Equal(t, 1, r.CountByType(core.AgentTypeTeam))
}

func TestRegistry_ReapIdleBoundaryKeepsExactThreshold(t *testing.T) {
	r, clk := newTestRegistry()
	r.Register("edge", core.AgentTypeBudget, "")
	clk.Advance(10 * time.Minute)
	assert.Equal(t, 0, r.ReapIdle(10*time.Minute))
	clk.Advance(time.Nanosecond)
	assert.Equal(t, 1, r.ReapIdle(10*time.Minute))
}

func TestRegistry_ReapIdleConcurrentWithRegistration(t *testing.T) {
	r := New()
	for i := 0; i < 100; i++ {
		r.Register(fmt.Sprintf("seed-%d", i), core.AgentTypes[i%5], "")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			r.Register(fmt.Sprintf("live-%d", i), core.AgentTypes[i%5], "")
			_ = r.List()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			// Everything was just active; nothing may be reaped.
			assert.Equal(t, 0, r.ReapIdle(time.Hour))
		}
	}()
	wg.Wait()
	assert.Equal(t, 200, r.Count())
}

func TestRegistry_ReapIdleProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("reap removes exactly the agents idle longer than the threshold", prop.ForAll(
		func(idleMinutes []int, threshold int) bool {
			clk := clock.NewManual(epoch)
			r := New(func(o *Options) { o.Clock = clk })
			now := epoch.Add(24 * time.Hour)

			for i, idle := range idleMinutes {
				clk.Set(now.Add(-time.Duration(idle) * time.Minute))
				r.Register(fmt.Sprintf("a%d", i), core.AgentTypes[i%5], "")
			}
			clk.Set(now)

			want := 0
			for _, idle := range idleMinutes {
				if idle > threshold {
					want++
				}
			}
			if r.ReapIdle(time.Duration(threshold)*time.Minute) != want {
				return false
			}
			for i, idle := range idleMinutes {
				_, err := r.Get(fmt.Sprintf("a%d", i))
				if (err == nil) != (idle <= threshold) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 120)),
		gen.IntRange(1, 90),
	))

	properties.TestingRun(t)
}

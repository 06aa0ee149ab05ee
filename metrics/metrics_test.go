package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.ObserveCall("tools/call", "cast_agent_vote", OutcomeOK, 2*time.Millisecond)
	m.ObserveCall("tools/call", "cast_agent_vote", OutcomeOK, time.Millisecond)
	m.ObserveCall("tools/call", "cast_agent_vote", "NOT_FOUND", time.Millisecond)
	m.SetAgents(4)
	m.ObserveVotingResult(true)
	m.ObserveVotingResult(false)
	m.ObserveVotingResult(false)
	m.ObserveEvent("grant.created")
	m.ObserveReaped(2)
	m.ObserveReaped(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.calls.WithLabelValues("tools/call", "cast_agent_vote", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("tools/call", "cast_agent_vote", "NOT_FOUND")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.agents))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("grant.created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reaped))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCall("ping", "", OutcomeOK, 0)
		m.SetAgents(1)
		m.ObserveVotingResult(true)
		m.ObserveEvent("x")
		m.ObserveReaped(1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SetAgents(3)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "grantmesh_agents_connected 3")
}

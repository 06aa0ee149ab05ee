package core

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGrantStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to GrantStatus
		ok       bool
	}{
		{GrantStatusPending, GrantStatusUnderReview, true},
		{GrantStatusUnderReview, GrantStatusApproved, true},
		{GrantStatusUnderReview, GrantStatusRejected, true},
		{GrantStatusApproved, GrantStatusActive, true},
		{GrantStatusActive, GrantStatusCompleted, true},
		{GrantStatusPending, GrantStatusApproved, false},
		{GrantStatusRejected, GrantStatusActive, false},
		{GrantStatusCompleted, GrantStatusPending, false},
		{GrantStatusUnderReview, GrantStatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, GrantStatusRejected.Terminal())
	assert.True(t, GrantStatusCompleted.Terminal())
	assert.False(t, GrantStatusPending.Terminal())
}

func TestGrantStatus_Valid(t *testing.T) {
	for _, s := range GrantStatuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, GrantStatus("archived").Valid())
}

func TestAgentType_Valid(t *testing.T) {
	assert.Len(t, AgentTypes, 5)
	for _, at := range AgentTypes {
		assert.True(t, at.Valid())
	}
	assert.False(t, AgentType("legal").Valid())
}

func TestValidateScore(t *testing.T) {
	assert.NoError(t, ValidateScore(0))
	assert.NoError(t, ValidateScore(100))
	assert.NoError(t, ValidateScore(69.5))

	for _, bad := range []float64{-0.1, 100.01, math.NaN()} {
		err := ValidateScore(bad)
		assert.True(t, errors.Is(err, ErrInvalidArgument), "score %v", bad)
	}
}

func TestGrant_CloneDetachesUpdatedAt(t *testing.T) {
	now := time.Now()
	g := Grant{ID: 1, UpdatedAt: &now}
	c := g.Clone()
	*c.UpdatedAt = now.Add(time.Hour)
	assert.Equal(t, now, *g.UpdatedAt)
}

func TestEvaluation_CloneDetachesSlices(t *testing.T) {
	e := Evaluation{Concerns: []string{"scope"}, Recommendations: []string{"milestones"}}
	c := e.Clone()
	c.Concerns[0] = "changed"
	c.Recommendations[0] = "changed"
	assert.Equal(t, "scope", e.Concerns[0])
	assert.Equal(t, "milestones", e.Recommendations[0])

	assert.Nil(t, Evaluation{}.Clone().Concerns)
}

package core

import "time"

// GrantStatus is the lifecycle state of a grant.
type GrantStatus string

const (
	GrantStatusPending     GrantStatus = "pending"
	GrantStatusUnderReview GrantStatus = "under_review"
	GrantStatusApproved    GrantStatus = "approved"
	GrantStatusRejected    GrantStatus = "rejected"
	GrantStatusActive      GrantStatus = "active"
	GrantStatusCompleted   GrantStatus = "completed"
)

// GrantStatuses lists every status in lifecycle order.
var GrantStatuses = []GrantStatus{
	GrantStatusPending,
	GrantStatusUnderReview,
	GrantStatusApproved,
	GrantStatusRejected,
	GrantStatusActive,
	GrantStatusCompleted,
}

// transitions is the lifecycle guard applied above the store.
var transitions = map[GrantStatus][]GrantStatus{
	GrantStatusPending:     {GrantStatusUnderReview},
	GrantStatusUnderReview: {GrantStatusApproved, GrantStatusRejected},
	GrantStatusApproved:    {GrantStatusActive},
	GrantStatusActive:      {GrantStatusCompleted},
}

// Valid reports whether s is a known status.
func (s GrantStatus) Valid() bool {
	for _, known := range GrantStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether moving from s to next follows the grant
// lifecycle: pending -> under_review -> approved|rejected, approved -> active
// -> completed. The store itself never calls this; it is the policy used by
// callers that want a guarded update.
func (s GrantStatus) CanTransitionTo(next GrantStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s GrantStatus) Terminal() bool { return len(transitions[s]) == 0 }

// GrantInput carries the caller supplied fields of a new grant.
type GrantInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Applicant   string  `json:"applicant,omitempty"`
	Amount      float64 `json:"amount"`
}

// Grant is a funding request tracked through evaluation and approval.
// ID and CreatedAt are assigned by the store and never change.
type Grant struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Applicant   string      `json:"applicant,omitempty"`
	Amount      float64     `json:"amount"`
	Status      GrantStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
}

// Clone returns a copy that shares no pointers with g.
func (g Grant) Clone() Grant {
	if g.UpdatedAt != nil {
		u := *g.UpdatedAt
		g.UpdatedAt = &u
	}
	return g
}

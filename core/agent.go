package core

import "time"

// AgentStatus is the liveness state an agent reports for itself.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
	AgentStatusBusy     AgentStatus = "busy"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusActive, AgentStatusInactive, AgentStatusBusy:
		return true
	}
	return false
}

// AgentInfo is the liveness and identity record of a connected evaluator.
type AgentInfo struct {
	ID               string      `json:"id"`
	Type             AgentType   `json:"type"`
	Wallet           string      `json:"wallet,omitempty"`
	Status           AgentStatus `json:"status"`
	ConnectedAt      time.Time   `json:"connected_at"`
	LastActivity     time.Time   `json:"last_activity"`
	EvaluationsCount int         `json:"evaluations_count"`
}

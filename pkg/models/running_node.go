package models

import "time"

// NodeState is the execution status of a single DAG node within a run. Like
// RunState it is open-ended: the executor may assert values beyond the ones
// declared here and the store persists them untouched.
type NodeState string

const (
	NodeStateWaiting   NodeState = "waiting" // initial state on creation
	NodeStateRunning   NodeState = "running"
	NodeStateSuccess   NodeState = "success"
	NodeStateFailure   NodeState = "failure"
	NodeStateSkipped   NodeState = "skipped"
	NodeStateCancelled NodeState = "cancelled"
)

// IsKnown reports whether the state is one of the predeclared node states.
func (s NodeState) IsKnown() bool {
	switch s {
	case NodeStateWaiting, NodeStateRunning, NodeStateSuccess,
		NodeStateFailure, NodeStateSkipped, NodeStateCancelled:
		return true
	}

	return false
}

// RunbookRunningNode tracks the execution state of one node of the owning
// revision's DAG within one run. NodeID is the node's string key inside the
// revision's nodes document, not a foreign key.
type RunbookRunningNode struct {
	ID     string `json:"id"`
	RunID  string `json:"run_id"  validate:"required"`
	NodeID string `json:"node_id" validate:"required"`

	// TriggeredBy records the causal edge: which upstream node output or
	// external event made this node eligible to run. Empty for DAG roots.
	TriggeredBy map[string]any `json:"triggered_by"`

	Output map[string]any `json:"output"`
	Data   map[string]any `json:"data"`
	Result map[string]any `json:"result"`

	State       NodeState `json:"state"`
	HasWarnings bool      `json:"has_warnings"`

	StateChangedAt *time.Time `json:"state_changed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RunningNodeUpdate carries a partial update for a running node. Each field is
// independently settable; setting State stamps state_changed_at. Serialization
// of every supplied field happens before any SQL, so a bad document on one
// field fails the whole call without partial writes.
type RunningNodeUpdate struct {
	Output      map[string]any
	Data        map[string]any
	State       *NodeState
	TriggeredBy map[string]any
	HasWarnings *bool
	Result      map[string]any
}

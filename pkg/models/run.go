package models

import "time"

// RunState is the workflow-level status of a run.
//
// The executor owns transition legality and may assert states this package does
// not know about; the store persists whatever string it is given. IsKnown lets
// callers distinguish the states defined here from executor-introduced ones.
type RunState string

const (
	RunStateRunning   RunState = "running" // initial state on creation
	RunStateSuccess   RunState = "success"
	RunStateFailure   RunState = "failure"
	RunStateCancelled RunState = "cancelled"
)

// IsKnown reports whether the state is one of the predeclared run states.
func (s RunState) IsKnown() bool {
	switch s {
	case RunStateRunning, RunStateSuccess, RunStateFailure, RunStateCancelled:
		return true
	}

	return false
}

// RunbookRun is one execution instance of a specific runbook revision.
type RunbookRun struct {
	ID          string         `json:"id"`
	RunbookID   string         `json:"runbook_id"   validate:"required"`
	TriggerType string         `json:"trigger_type" validate:"required"`
	Args        map[string]any `json:"args"`
	State       RunState       `json:"state"`
	Result      map[string]any `json:"result"`
	HasWarnings bool           `json:"has_warnings"`

	// StateChangedAt tracks the time of the last state transition only; result
	// or warning updates never refresh it. Nil until the first explicit state
	// update after creation.
	StateChangedAt *time.Time `json:"state_changed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	// RunbookPermanentID is denormalized from the owning revision on reads; it
	// is not stored on the run row itself.
	RunbookPermanentID string `json:"runbook_permanent_id,omitempty"`
}

// RunUpdate carries a partial update for a run. Setting State stamps
// state_changed_at; the other fields do not.
type RunUpdate struct {
	State       *RunState
	Result      map[string]any
	HasWarnings *bool
}

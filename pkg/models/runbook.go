// Package models defines the core domain models for the runbook workflow store.
package models

import "time"

// Runbook is one revision of a triggerable workflow definition.
//
// Revisions sharing a PermanentID form a chain linked through PreviousID; the
// revision with no successor is the latest one. A nil PreviousID marks the root
// of a chain. Mutations never move a revision within its chain: authoring a new
// version always inserts a new row pointing back at the one it supersedes.
type Runbook struct {
	ID          string  `json:"id"`
	PermanentID string  `json:"permanent_id"`
	PreviousID  *string `json:"previous_id,omitempty"`

	Name                string `json:"name"         validate:"required"`
	Description         string `json:"description"`
	Enabled             bool   `json:"enabled"`
	TriggerType         string `json:"trigger_type" validate:"required"`
	TriggerTemplateType string `json:"trigger_template_type,omitempty"`

	// Opaque documents consumed by the trigger dispatcher and the executor.
	// The store round-trips them without inspecting their contents.
	TriggerData map[string]any `json:"trigger_data"`
	Input       map[string]any `json:"input"`
	Nodes       map[string]any `json:"nodes"`
	UIData      map[string]any `json:"ui_data"`
	Settings    map[string]any `json:"settings"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

// RunbookUpdate carries a partial update for a runbook revision. Nil fields are
// left untouched. PreviousID and PermanentID are deliberately absent: chain
// membership is immutable.
type RunbookUpdate struct {
	Name                *string
	Description         *string
	Enabled             *bool
	TriggerType         *string
	TriggerTemplateType *string
	TriggerData         map[string]any
	Input               map[string]any
	Nodes               map[string]any
	UIData              map[string]any
	Settings            map[string]any
	LastRunAt           *time.Time
}

// IsEmpty reports whether the update would change nothing beyond updated_at.
func (u RunbookUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Enabled == nil &&
		u.TriggerType == nil && u.TriggerTemplateType == nil &&
		u.TriggerData == nil && u.Input == nil && u.Nodes == nil &&
		u.UIData == nil && u.Settings == nil && u.LastRunAt == nil
}

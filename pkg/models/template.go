package models

import "time"

// RunbookTemplate is a reusable, versionless workflow definition from the
// seeded catalog, unique by (name, category). Consumed when authoring new
// runbook revisions.
type RunbookTemplate struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"     validate:"required"`
	Category    string         `json:"category" validate:"required"`
	Description string         `json:"description"`
	Hidden      bool           `json:"hidden"`
	Spec        map[string]any `json:"spec"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RunbookNodeTemplate is a reusable node definition, unique by type.
type RunbookNodeTemplate struct {
	ID          string         `json:"id"`
	Type        string         `json:"type" validate:"required"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description"`
	Hidden      bool           `json:"hidden"`
	Config      map[string]any `json:"config"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RunbookTemplateCategory groups templates in the catalog, unique by name.
type RunbookTemplateCategory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	Hidden      bool      `json:"hidden"`
	CreatedAt   time.Time `json:"created_at"`
}

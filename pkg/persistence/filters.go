package persistence

import (
	"time"

	"github.com/linuxautomates/gitsei-sub043/pkg/models"
)

// RunbookFilter selects runbook revisions. Zero values mean "no constraint".
type RunbookFilter struct {
	Name                string // substring, case-insensitive
	Enabled             *bool
	TriggerType         string
	TriggerTemplateType string
	IDs                 []string
	PreviousID          *string
	PermanentIDs        []string

	// OnlyLatestRevision keeps only revisions no other revision points at via
	// previous_id, i.e. the leaf of each chain.
	OnlyLatestRevision bool

	Limit  int
	Offset int
}

// RunFilter selects runs. The StateChanged window applies to state_changed_at.
type RunFilter struct {
	RunbookID          string
	States             []models.RunState
	HasWarnings        *bool
	StateChangedAfter  *time.Time
	StateChangedBefore *time.Time

	Limit  int
	Offset int
}

// RunningNodeFilter selects running node records within runs.
type RunningNodeFilter struct {
	RunID       string
	NodeIDs     []string
	TriggeredBy map[string]any // document equality
	States      []models.NodeState
	HasWarnings *bool

	Limit  int
	Offset int
}

// ReportFilter selects report metadata rows.
type ReportFilter struct {
	RunbookID string
	RunID     string
	Source    string
	Title     string // substring, case-insensitive

	Limit  int
	Offset int
}

// ReportSectionFilter selects report sections.
type ReportSectionFilter struct {
	ReportID string
	Source   string
	Title    string // substring, case-insensitive

	Limit  int
	Offset int
}

// TemplateFilter selects catalog workflow templates.
type TemplateFilter struct {
	Name       string // substring, case-insensitive
	IDs        []string
	Categories []string
	Hidden     *bool

	Limit  int
	Offset int
}

// NodeTemplateFilter selects catalog node templates.
type NodeTemplateFilter struct {
	Name   string // substring, case-insensitive
	IDs    []string
	Types  []string
	Hidden *bool

	Limit  int
	Offset int
}

// TemplateCategoryFilter selects catalog categories.
type TemplateCategoryFilter struct {
	Name   string // substring, case-insensitive
	IDs    []string
	Hidden *bool

	Limit  int
	Offset int
}

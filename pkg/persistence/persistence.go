package persistence

import (
	"context"

	"github.com/linuxautomates/gitsei-sub043/pkg/models"
)

// RevisionStore owns runbook revisions and their previous_id/permanent_id
// chain. Chain traversals are O(chain length) and cycle-safe: they fail with
// ErrRevisionChainCycle instead of looping on malformed data.
type RevisionStore interface {
	// Create inserts a new revision and returns its id and permanent id. A
	// missing permanent id marks the revision as the root of a new chain and a
	// fresh one is generated.
	Create(ctx context.Context, runbook *models.Runbook) (id, permanentID string, err error)

	// Update applies the supplied fields only and always refreshes updated_at.
	// Returns false when no row matched.
	Update(ctx context.Context, id string, update models.RunbookUpdate) (bool, error)

	Get(ctx context.Context, id string) (*models.Runbook, error)

	// GetLatestByPermanentID returns the leaf revision of the chain. When the
	// chain branches the choice is deterministic: deepest leaf first, then most
	// recently created, then smallest id.
	GetLatestByPermanentID(ctx context.Context, permanentID string) (*models.Runbook, error)

	// GetLatestRevision returns the id of the leaf of the sub-chain rooted at
	// id, i.e. the revision at maximum forward distance from id.
	GetLatestRevision(ctx context.Context, id string) (string, error)

	// ListNewerRevisions returns id plus all of its descendants.
	ListNewerRevisions(ctx context.Context, id string) ([]string, error)

	// ListPreviousRevisions returns id plus all of its ancestors up to the root.
	ListPreviousRevisions(ctx context.Context, id string) ([]string, error)

	// DeletePreviousRevisions prunes the ancestors of id, including id itself
	// when inclusive is true. Returns whether anything was deleted. Referential
	// integrity against runs is NOT checked here; see CanPruneRevisions.
	DeletePreviousRevisions(ctx context.Context, id string, inclusive bool) (bool, error)

	// CanPruneRevisions reports whether DeletePreviousRevisions with the same
	// arguments would leave no run referencing a deleted revision.
	CanPruneRevisions(ctx context.Context, id string, inclusive bool) (bool, error)

	Filter(ctx context.Context, filter RunbookFilter) ([]*models.Runbook, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// RunStore owns run records. It is a passive store: it records whatever state
// the executor asserts and timestamps the transition, enforcing only the
// initial state at creation.
type RunStore interface {
	Create(ctx context.Context, run *models.RunbookRun) (string, error)
	Update(ctx context.Context, id string, update models.RunUpdate) (bool, error)

	// Get also exposes the owning revision's permanent id, denormalized onto
	// the returned run.
	Get(ctx context.Context, id string) (*models.RunbookRun, error)

	Filter(ctx context.Context, filter RunFilter) ([]*models.RunbookRun, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteBulk(ctx context.Context, ids []string) (int64, error)
}

// NodeRunStore owns per-node execution records within runs. Rows are normally
// deleted only by cascade when the owning run is deleted.
type NodeRunStore interface {
	Create(ctx context.Context, node *models.RunbookRunningNode) (string, error)
	Update(ctx context.Context, id string, update models.RunningNodeUpdate) (bool, error)
	Get(ctx context.Context, id string) (*models.RunbookRunningNode, error)
	Filter(ctx context.Context, filter RunningNodeFilter) ([]*models.RunbookRunningNode, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// ReportStore records metadata about externally stored run artifacts. Inserts
// colliding on (runbook_id, run_id, source) return an empty id and no error so
// duplicate submission is idempotent. Reports are immutable once written.
type ReportStore interface {
	CreateReport(ctx context.Context, report *models.RunbookReport) (string, error)
	GetReport(ctx context.Context, id string) (*models.RunbookReport, error)
	FilterReports(ctx context.Context, filter ReportFilter) ([]*models.RunbookReport, error)
	DeleteReports(ctx context.Context, ids []string) (int64, error)
}

// ReportSectionStore records paginated report sections, unique by
// (source, report_id), with the same idempotent-insert contract as reports.
type ReportSectionStore interface {
	CreateSection(ctx context.Context, section *models.RunbookReportSection) (string, error)
	FilterSections(ctx context.Context, filter ReportSectionFilter) ([]*models.RunbookReportSection, error)
	DeleteSections(ctx context.Context, ids []string) (int64, error)
}

// TemplateCatalog is the read-mostly catalog of reusable definitions. Seeding
// is an explicit, idempotent step separate from schema migration.
type TemplateCatalog interface {
	SeedTemplates(ctx context.Context) error
	FilterTemplates(ctx context.Context, filter TemplateFilter) ([]*models.RunbookTemplate, error)
	FilterNodeTemplates(ctx context.Context, filter NodeTemplateFilter) ([]*models.RunbookNodeTemplate, error)
	FilterCategories(ctx context.Context, filter TemplateCategoryFilter) ([]*models.RunbookTemplateCategory, error)
}

// Persistence aggregates the runbook stores over one backing database.
type Persistence interface {
	Runbooks() RevisionStore
	Runs() RunStore
	RunningNodes() NodeRunStore
	Reports() ReportStore
	ReportSections() ReportSectionStore
	Templates() TemplateCatalog

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

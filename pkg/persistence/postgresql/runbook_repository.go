package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/linuxautomates/gitsei-sub043/pkg/models"
	"github.com/linuxautomates/gitsei-sub043/pkg/persistence"
)

const runbookColumns = `
	id
  , permanent_id
  , previous_id
  , name
  , description
  , enabled
  , trigger_type
  , trigger_template_type
  , trigger_data
  , input
  , nodes
  , ui_data
  , settings
  , created_at
  , updated_at
  , last_run_at
`

// RunbookRepository handles runbook revision database operations, including
// the previous_id/permanent_id chain traversals.
type RunbookRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunbookRepository creates a new runbook revision repository.
func NewRunbookRepository(db *sql.DB, logger *slog.Logger) *RunbookRepository {
	return &RunbookRepository{db: db, logger: logger}
}

// Create inserts a new revision. A missing permanent id is inherited from the
// previous revision when one is referenced, otherwise freshly generated,
// marking the root of a brand-new chain.
func (r *RunbookRepository) Create(ctx context.Context, runbook *models.Runbook) (string, string, error) {
	if err := validateStruct(runbook); err != nil {
		return "", "", err
	}

	if runbook.PermanentID == "" {
		permanentID, err := r.resolvePermanentID(ctx, runbook.PreviousID)
		if err != nil {
			return "", "", err
		}

		runbook.PermanentID = permanentID
	}

	if runbook.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", "", fmt.Errorf("failed to generate runbook ID: %w", err)
		}

		runbook.ID = id.String()
	}

	now := time.Now().UTC()
	runbook.CreatedAt = now
	runbook.UpdatedAt = now

	docs := make([][]byte, 0, 5)

	for _, doc := range []map[string]any{
		runbook.TriggerData, runbook.Input, runbook.Nodes, runbook.UIData, runbook.Settings,
	} {
		raw, err := marshalDoc(doc)
		if err != nil {
			return "", "", err
		}

		docs = append(docs, raw)
	}

	query := `
		INSERT INTO runbooks (` + runbookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.ExecContext(ctx, query,
		runbook.ID,
		runbook.PermanentID,
		runbook.PreviousID,
		runbook.Name,
		runbook.Description,
		runbook.Enabled,
		runbook.TriggerType,
		nullableString(runbook.TriggerTemplateType),
		docs[0], docs[1], docs[2], docs[3], docs[4],
		runbook.CreatedAt,
		runbook.UpdatedAt,
		runbook.LastRunAt,
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to insert runbook: %w", mapUniqueViolation(err))
	}

	return runbook.ID, runbook.PermanentID, nil
}

func (r *RunbookRepository) resolvePermanentID(ctx context.Context, previousID *string) (string, error) {
	if previousID != nil {
		previous, err := r.Get(ctx, *previousID)
		if err != nil {
			return "", fmt.Errorf("failed to resolve permanent id from previous revision: %w", err)
		}

		return previous.PermanentID, nil
	}

	permanentID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate permanent ID: %w", err)
	}

	return permanentID.String(), nil
}

// Update applies the supplied fields only; updated_at is always refreshed.
// Chain pointers are immutable and not updatable here.
func (r *RunbookRepository) Update(ctx context.Context, id string, update models.RunbookUpdate) (bool, error) {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Name != nil {
		addSet("name", *update.Name)
	}

	if update.Description != nil {
		addSet("description", *update.Description)
	}

	if update.Enabled != nil {
		addSet("enabled", *update.Enabled)
	}

	if update.TriggerType != nil {
		addSet("trigger_type", *update.TriggerType)
	}

	if update.TriggerTemplateType != nil {
		addSet("trigger_template_type", nullableString(*update.TriggerTemplateType))
	}

	if update.LastRunAt != nil {
		addSet("last_run_at", *update.LastRunAt)
	}

	for column, doc := range map[string]map[string]any{
		"trigger_data": update.TriggerData,
		"input":        update.Input,
		"nodes":        update.Nodes,
		"ui_data":      update.UIData,
		"settings":     update.Settings,
	} {
		if doc == nil {
			continue
		}

		raw, err := marshalDoc(doc)
		if err != nil {
			return false, err
		}

		addSet(column, raw)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE runbooks SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update runbook: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// Get returns the single revision by id.
func (r *RunbookRepository) Get(ctx context.Context, id string) (*models.Runbook, error) {
	query := `SELECT ` + runbookColumns + ` FROM runbooks WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	runbook, err := r.scanRunbook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("Get", "runbook", id, persistence.ErrRunbookNotFound)
		}

		return nil, fmt.Errorf("failed to scan runbook: %w", err)
	}

	return runbook, nil
}

// GetLatestByPermanentID returns the leaf revision of the chain: the one no
// other revision references as previous_id. Branched chains resolve
// deterministically (deepest leaf, then most recent, then smallest id).
func (r *RunbookRepository) GetLatestByPermanentID(ctx context.Context, permanentID string) (*models.Runbook, error) {
	idx, err := r.loadChainByPermanentID(ctx, permanentID)
	if err != nil {
		return nil, err
	}

	if len(idx.nodes) == 0 {
		return nil, persistence.NewStoreError("GetLatestByPermanentID", "runbook", permanentID, persistence.ErrRunbookNotFound)
	}

	leaf, err := idx.bestLeaf()
	if err != nil {
		return nil, err
	}

	return r.Get(ctx, leaf)
}

// GetLatestRevision returns the id of the leaf of the sub-chain rooted at id:
// the revision at maximum forward distance from it.
func (r *RunbookRepository) GetLatestRevision(ctx context.Context, id string) (string, error) {
	idx, err := r.loadChainFor(ctx, id)
	if err != nil {
		return "", err
	}

	return idx.leafFrom(id)
}

// ListNewerRevisions returns id plus all of its descendants.
func (r *RunbookRepository) ListNewerRevisions(ctx context.Context, id string) ([]string, error) {
	idx, err := r.loadChainFor(ctx, id)
	if err != nil {
		return nil, err
	}

	return idx.descendants(id)
}

// ListPreviousRevisions returns id plus all of its ancestors up to the root.
func (r *RunbookRepository) ListPreviousRevisions(ctx context.Context, id string) ([]string, error) {
	idx, err := r.loadChainFor(ctx, id)
	if err != nil {
		return nil, err
	}

	return idx.ancestors(id)
}

// DeletePreviousRevisions prunes the ancestor set of id. Runs referencing the
// pruned revisions are not checked; callers gate on CanPruneRevisions first.
func (r *RunbookRepository) DeletePreviousRevisions(ctx context.Context, id string, inclusive bool) (bool, error) {
	targets, err := r.pruneSet(ctx, id, inclusive)
	if err != nil {
		return false, err
	}

	if len(targets) == 0 {
		return false, nil
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM runbooks WHERE id = ANY($1)", pq.Array(targets))
	if err != nil {
		return false, fmt.Errorf("failed to delete previous revisions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// CanPruneRevisions reports whether pruning would leave no run pointing at a
// deleted revision.
func (r *RunbookRepository) CanPruneRevisions(ctx context.Context, id string, inclusive bool) (bool, error) {
	targets, err := r.pruneSet(ctx, id, inclusive)
	if err != nil {
		return false, err
	}

	if len(targets) == 0 {
		return true, nil
	}

	var referenced bool

	err = r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM runbook_runs WHERE runbook_id = ANY($1))",
		pq.Array(targets),
	).Scan(&referenced)
	if err != nil {
		return false, fmt.Errorf("failed to check referencing runs: %w", err)
	}

	return !referenced, nil
}

func (r *RunbookRepository) pruneSet(ctx context.Context, id string, inclusive bool) ([]string, error) {
	ancestors, err := r.ListPreviousRevisions(ctx, id)
	if err != nil {
		return nil, err
	}

	if inclusive {
		return ancestors, nil
	}

	targets := make([]string, 0, len(ancestors))

	for _, ancestor := range ancestors {
		if ancestor != id {
			targets = append(targets, ancestor)
		}
	}

	return targets, nil
}

// Filter returns revisions matching the filter, newest updated first.
func (r *RunbookRepository) Filter(ctx context.Context, filter persistence.RunbookFilter) ([]*models.Runbook, error) {
	where := []string{"1 = 1"}
	args := []any{}

	addWhere := func(condition string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(condition, len(args)))
	}

	if filter.Name != "" {
		addWhere("name ILIKE $%d", "%"+filter.Name+"%")
	}

	if filter.Enabled != nil {
		addWhere("enabled = $%d", *filter.Enabled)
	}

	if filter.TriggerType != "" {
		addWhere("trigger_type = $%d", filter.TriggerType)
	}

	if filter.TriggerTemplateType != "" {
		addWhere("trigger_template_type = $%d", filter.TriggerTemplateType)
	}

	if len(filter.IDs) > 0 {
		addWhere("id = ANY($%d)", pq.Array(filter.IDs))
	}

	if filter.PreviousID != nil {
		addWhere("previous_id = $%d", *filter.PreviousID)
	}

	if len(filter.PermanentIDs) > 0 {
		addWhere("permanent_id = ANY($%d)", pq.Array(filter.PermanentIDs))
	}

	if filter.OnlyLatestRevision {
		where = append(where, "NOT EXISTS (SELECT 1 FROM runbooks c WHERE c.previous_id = runbooks.id)")
	}

	query := "SELECT " + runbookColumns + " FROM runbooks WHERE " +
		strings.Join(where, " AND ") + " ORDER BY updated_at DESC"
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runbooks: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	runbooks := make([]*models.Runbook, 0)

	for rows.Next() {
		runbook, err := r.scanRunbook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan runbook: %w", err)
		}

		runbooks = append(runbooks, runbook)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runbooks: %w", err)
	}

	return runbooks, nil
}

// Delete removes a single revision unconditionally; chain consistency is the
// caller's concern.
func (r *RunbookRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM runbooks WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete runbook: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// loadChainFor loads the whole chain containing the given revision into an
// in-memory index, so traversals never re-query per hop.
func (r *RunbookRepository) loadChainFor(ctx context.Context, id string) (*chainIndex, error) {
	var permanentID string

	err := r.db.QueryRowContext(ctx, "SELECT permanent_id FROM runbooks WHERE id = $1", id).Scan(&permanentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("LoadChain", "runbook", id, persistence.ErrRunbookNotFound)
		}

		return nil, fmt.Errorf("failed to resolve chain for runbook: %w", err)
	}

	idx, err := r.loadChainByPermanentID(ctx, permanentID)
	if err != nil {
		return nil, err
	}

	if !idx.contains(id) {
		return nil, persistence.NewStoreError("LoadChain", "runbook", id, persistence.ErrRunbookNotFound)
	}

	return idx, nil
}

func (r *RunbookRepository) loadChainByPermanentID(ctx context.Context, permanentID string) (*chainIndex, error) {
	query := `SELECT id, previous_id, created_at FROM runbooks WHERE permanent_id = $1`

	rows, err := r.db.QueryContext(ctx, query, permanentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revision chain: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	var edges []revisionEdge

	for rows.Next() {
		var edge revisionEdge

		err := rows.Scan(&edge.id, &edge.previousID, &edge.createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revision edge: %w", err)
		}

		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revision chain: %w", err)
	}

	return newChainIndex(edges), nil
}

func (r *RunbookRepository) scanRunbook(scanner interface {
	Scan(dest ...any) error
}) (*models.Runbook, error) {
	var (
		runbook             models.Runbook
		triggerTemplateType sql.NullString
		docs                [5][]byte
	)

	err := scanner.Scan(
		&runbook.ID,
		&runbook.PermanentID,
		&runbook.PreviousID,
		&runbook.Name,
		&runbook.Description,
		&runbook.Enabled,
		&runbook.TriggerType,
		&triggerTemplateType,
		&docs[0], &docs[1], &docs[2], &docs[3], &docs[4],
		&runbook.CreatedAt,
		&runbook.UpdatedAt,
		&runbook.LastRunAt,
	)
	if err != nil {
		return nil, err
	}

	runbook.TriggerTemplateType = triggerTemplateType.String

	for i, dest := range []*map[string]any{
		&runbook.TriggerData, &runbook.Input, &runbook.Nodes, &runbook.UIData, &runbook.Settings,
	} {
		if err := unmarshalDoc(docs[i], dest); err != nil {
			return nil, err
		}
	}

	return &runbook, nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func limitOffset(args *[]any, limit, offset int) string {
	var clause string

	if limit > 0 {
		*args = append(*args, limit)
		clause += fmt.Sprintf(" LIMIT $%d", len(*args))
	}

	if offset > 0 {
		*args = append(*args, offset)
		clause += fmt.Sprintf(" OFFSET $%d", len(*args))
	}

	return clause
}

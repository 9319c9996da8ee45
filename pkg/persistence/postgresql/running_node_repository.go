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

const runningNodeColumns = `
	id
  , run_id
  , node_id
  , triggered_by
  , output
  , data
  , result
  , state
  , has_warnings
  , state_changed_at
  , created_at
`

// RunningNodeRepository handles per-node execution records within runs. The
// store does not validate triggered_by against the revision's node graph;
// causal correctness is the executor's responsibility.
type RunningNodeRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunningNodeRepository creates a new running node repository.
func NewRunningNodeRepository(db *sql.DB, logger *slog.Logger) *RunningNodeRepository {
	return &RunningNodeRepository{db: db, logger: logger}
}

// Create inserts a running node record. State defaults to waiting and an
// absent triggered_by normalizes to an empty document, meaning "no recorded
// cause", e.g. a root node of the DAG.
func (nr *RunningNodeRepository) Create(ctx context.Context, node *models.RunbookRunningNode) (string, error) {
	if err := validateStruct(node); err != nil {
		return "", err
	}

	if node.State == "" {
		node.State = models.NodeStateWaiting
	}

	if node.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("failed to generate running node ID: %w", err)
		}

		node.ID = id.String()
	}

	node.CreatedAt = time.Now().UTC()
	node.StateChangedAt = nil

	docs := make([][]byte, 0, 4)

	for _, doc := range []map[string]any{node.TriggeredBy, node.Output, node.Data, node.Result} {
		raw, err := marshalDoc(doc)
		if err != nil {
			return "", err
		}

		docs = append(docs, raw)
	}

	query := `
		INSERT INTO runbook_running_nodes (` + runningNodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := nr.db.ExecContext(ctx, query,
		node.ID,
		node.RunID,
		node.NodeID,
		docs[0], docs[1], docs[2], docs[3],
		string(node.State),
		node.HasWarnings,
		node.StateChangedAt,
		node.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert running node: %w", mapUniqueViolation(err))
	}

	return node.ID, nil
}

// Update applies the supplied fields only. Every supplied document is
// serialized before any SQL, so a serialization failure on one field fails the
// whole call with no partial write. Setting State stamps state_changed_at.
func (nr *RunningNodeRepository) Update(ctx context.Context, id string, update models.RunningNodeUpdate) (bool, error) {
	sets := []string{}
	args := []any{}

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	for column, doc := range map[string]map[string]any{
		"output":       update.Output,
		"data":         update.Data,
		"triggered_by": update.TriggeredBy,
		"result":       update.Result,
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

	if update.State != nil {
		addSet("state", string(*update.State))
		addSet("state_changed_at", time.Now().UTC())
	}

	if update.HasWarnings != nil {
		addSet("has_warnings", *update.HasWarnings)
	}

	if len(sets) == 0 {
		return false, nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE runbook_running_nodes SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := nr.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update running node: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// Get returns the running node record by id.
func (nr *RunningNodeRepository) Get(ctx context.Context, id string) (*models.RunbookRunningNode, error) {
	query := `SELECT ` + runningNodeColumns + ` FROM runbook_running_nodes WHERE id = $1`

	row := nr.db.QueryRowContext(ctx, query, id)

	node, err := nr.scanRunningNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("Get", "running node", id, persistence.ErrNodeRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan running node: %w", err)
	}

	return node, nil
}

// Filter returns running node records in chronological execution order within
// a run.
func (nr *RunningNodeRepository) Filter(ctx context.Context, filter persistence.RunningNodeFilter) ([]*models.RunbookRunningNode, error) {
	where := []string{"1 = 1"}
	args := []any{}

	addWhere := func(condition string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(condition, len(args)))
	}

	if filter.RunID != "" {
		addWhere("run_id = $%d", filter.RunID)
	}

	if len(filter.NodeIDs) > 0 {
		addWhere("node_id = ANY($%d)", pq.Array(filter.NodeIDs))
	}

	if filter.TriggeredBy != nil {
		raw, err := marshalDoc(filter.TriggeredBy)
		if err != nil {
			return nil, err
		}

		addWhere("triggered_by = $%d::jsonb", raw)
	}

	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, state := range filter.States {
			states[i] = string(state)
		}

		addWhere("state = ANY($%d)", pq.Array(states))
	}

	if filter.HasWarnings != nil {
		addWhere("has_warnings = $%d", *filter.HasWarnings)
	}

	query := "SELECT " + runningNodeColumns + " FROM runbook_running_nodes WHERE " +
		strings.Join(where, " AND ") + " ORDER BY created_at ASC"
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := nr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query running nodes: %w", err)
	}

	defer closeRows(ctx, nr.logger, rows)

	nodes := make([]*models.RunbookRunningNode, 0)

	for rows.Next() {
		node, err := nr.scanRunningNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan running node: %w", err)
		}

		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating running nodes: %w", err)
	}

	return nodes, nil
}

// Delete removes a single record. Normal lifecycle is cascade deletion with
// the owning run; this exists for manual cleanup.
func (nr *RunningNodeRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := nr.db.ExecContext(ctx, "DELETE FROM runbook_running_nodes WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete running node: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

func (nr *RunningNodeRepository) scanRunningNode(scanner interface {
	Scan(dest ...any) error
}) (*models.RunbookRunningNode, error) {
	var (
		node  models.RunbookRunningNode
		docs  [4][]byte
		state string
	)

	err := scanner.Scan(
		&node.ID,
		&node.RunID,
		&node.NodeID,
		&docs[0], &docs[1], &docs[2], &docs[3],
		&state,
		&node.HasWarnings,
		&node.StateChangedAt,
		&node.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	node.State = models.NodeState(state)

	for i, dest := range []*map[string]any{&node.TriggeredBy, &node.Output, &node.Data, &node.Result} {
		if err := unmarshalDoc(docs[i], dest); err != nil {
			return nil, err
		}
	}

	return &node, nil
}

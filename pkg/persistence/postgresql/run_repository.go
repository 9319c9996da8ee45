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

// RunRepository handles run-related database operations. It is a passive
// store: state transition legality belongs to the executor, the repository
// records whatever state is asserted and timestamps the transition.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// Create inserts a run against a specific runbook revision. State defaults to
// the initial in-progress value; state_changed_at stays NULL until the first
// explicit state update.
func (r *RunRepository) Create(ctx context.Context, run *models.RunbookRun) (string, error) {
	if err := validateStruct(run); err != nil {
		return "", err
	}

	if run.State == "" {
		run.State = models.RunStateRunning
	}

	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("failed to generate run ID: %w", err)
		}

		run.ID = id.String()
	}

	run.CreatedAt = time.Now().UTC()
	run.StateChangedAt = nil

	argsJSON, err := marshalDoc(run.Args)
	if err != nil {
		return "", err
	}

	resultJSON, err := marshalDoc(run.Result)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO runbook_runs (id, runbook_id, trigger_type, args, state, result, has_warnings, state_changed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.RunbookID,
		run.TriggerType,
		argsJSON,
		string(run.State),
		resultJSON,
		run.HasWarnings,
		run.StateChangedAt,
		run.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", mapUniqueViolation(err))
	}

	return run.ID, nil
}

// Update applies the supplied fields only. Setting State stamps
// state_changed_at; result or warning updates alone never touch it.
func (r *RunRepository) Update(ctx context.Context, id string, update models.RunUpdate) (bool, error) {
	sets := []string{}
	args := []any{}

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.State != nil {
		addSet("state", string(*update.State))
		addSet("state_changed_at", time.Now().UTC())
	}

	if update.Result != nil {
		raw, err := marshalDoc(update.Result)
		if err != nil {
			return false, err
		}

		addSet("result", raw)
	}

	if update.HasWarnings != nil {
		addSet("has_warnings", *update.HasWarnings)
	}

	if len(sets) == 0 {
		return false, nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE runbook_runs SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// Get returns the run, joined through to the owning revision so the chain's
// permanent id is exposed without the run storing it.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.RunbookRun, error) {
	query := `
		SELECT
			r.id
		  , r.runbook_id
		  , r.trigger_type
		  , r.args
		  , r.state
		  , r.result
		  , r.has_warnings
		  , r.state_changed_at
		  , r.created_at
		  , COALESCE(b.permanent_id::text, '')
		FROM runbook_runs r
		LEFT JOIN runbooks b ON b.id = r.runbook_id
		WHERE r.id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	run, err := r.scanRun(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("Get", "run", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// Filter returns runs matching the filter. Runs that never left their initial
// state sort by creation recency alongside transitioned ones.
func (r *RunRepository) Filter(ctx context.Context, filter persistence.RunFilter) ([]*models.RunbookRun, error) {
	where := []string{"1 = 1"}
	args := []any{}

	addWhere := func(condition string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(condition, len(args)))
	}

	if filter.RunbookID != "" {
		addWhere("runbook_id = $%d", filter.RunbookID)
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

	if filter.StateChangedAfter != nil {
		addWhere("state_changed_at >= $%d", *filter.StateChangedAfter)
	}

	if filter.StateChangedBefore != nil {
		addWhere("state_changed_at <= $%d", *filter.StateChangedBefore)
	}

	query := `
		SELECT id, runbook_id, trigger_type, args, state, result, has_warnings, state_changed_at, created_at
		FROM runbook_runs
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY COALESCE(state_changed_at, created_at) DESC`
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	runs := make([]*models.RunbookRun, 0)

	for rows.Next() {
		run, err := r.scanRun(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// Delete removes a run; its running node rows go with it via cascade.
func (r *RunRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM runbook_runs WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// DeleteBulk removes a set of runs, e.g. a retention sweep. Returns the number
// of runs deleted.
func (r *RunRepository) DeleteBulk(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM runbook_runs WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to bulk delete runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

func (r *RunRepository) scanRun(scanner interface {
	Scan(dest ...any) error
}, withPermanentID bool) (*models.RunbookRun, error) {
	var (
		run                  models.RunbookRun
		argsJSON, resultJSON []byte
		state                string
	)

	dest := []any{
		&run.ID,
		&run.RunbookID,
		&run.TriggerType,
		&argsJSON,
		&state,
		&resultJSON,
		&run.HasWarnings,
		&run.StateChangedAt,
		&run.CreatedAt,
	}

	if withPermanentID {
		dest = append(dest, &run.RunbookPermanentID)
	}

	err := scanner.Scan(dest...)
	if err != nil {
		return nil, err
	}

	run.State = models.RunState(state)

	if err := unmarshalDoc(argsJSON, &run.Args); err != nil {
		return nil, err
	}

	if err := unmarshalDoc(resultJSON, &run.Result); err != nil {
		return nil, err
	}

	return &run, nil
}

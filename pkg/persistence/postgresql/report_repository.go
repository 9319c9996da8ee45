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

// ReportRepository records metadata about run artifacts stored in external
// blob storage, and their paginated sections. Rows are immutable once written:
// there is no update path, and a duplicate insert is a no-op that returns an
// empty id so callers can re-submit reports idempotently.
type ReportRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *sql.DB, logger *slog.Logger) *ReportRepository {
	return &ReportRepository{db: db, logger: logger}
}

// CreateReport inserts a report. On a (runbook_id, run_id, source) collision
// it returns an empty id and no error.
func (rr *ReportRepository) CreateReport(ctx context.Context, report *models.RunbookReport) (string, error) {
	if err := validateStruct(report); err != nil {
		return "", err
	}

	if report.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("failed to generate report ID: %w", err)
		}

		report.ID = id.String()
	}

	report.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO runbook_reports (id, runbook_id, run_id, source, title, path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (runbook_id, run_id, source) DO NOTHING
		RETURNING id
	`

	var id string

	err := rr.db.QueryRowContext(ctx, query,
		report.ID,
		report.RunbookID,
		report.RunID,
		report.Source,
		report.Title,
		report.Path,
		report.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Duplicate submission: swallowed into a "no id" outcome.
			return "", nil
		}

		return "", fmt.Errorf("failed to insert report: %w", err)
	}

	return id, nil
}

// GetReport returns a report by id.
func (rr *ReportRepository) GetReport(ctx context.Context, id string) (*models.RunbookReport, error) {
	query := `
		SELECT id, runbook_id, run_id, source, title, path, created_at
		FROM runbook_reports
		WHERE id = $1
	`

	var report models.RunbookReport

	err := rr.db.QueryRowContext(ctx, query, id).Scan(
		&report.ID,
		&report.RunbookID,
		&report.RunID,
		&report.Source,
		&report.Title,
		&report.Path,
		&report.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetReport", "report", id, persistence.ErrReportNotFound)
		}

		return nil, fmt.Errorf("failed to scan report: %w", err)
	}

	return &report, nil
}

// FilterReports returns report metadata rows, newest first.
func (rr *ReportRepository) FilterReports(ctx context.Context, filter persistence.ReportFilter) ([]*models.RunbookReport, error) {
	where := []string{"1 = 1"}
	args := []any{}

	addWhere := func(condition string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(condition, len(args)))
	}

	if filter.RunbookID != "" {
		addWhere("runbook_id = $%d", filter.RunbookID)
	}

	if filter.RunID != "" {
		addWhere("run_id = $%d", filter.RunID)
	}

	if filter.Source != "" {
		addWhere("source = $%d", filter.Source)
	}

	if filter.Title != "" {
		addWhere("title ILIKE $%d", "%"+filter.Title+"%")
	}

	query := `
		SELECT id, runbook_id, run_id, source, title, path, created_at
		FROM runbook_reports
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC`
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := rr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}

	defer closeRows(ctx, rr.logger, rows)

	reports := make([]*models.RunbookReport, 0)

	for rows.Next() {
		var report models.RunbookReport

		err := rows.Scan(
			&report.ID,
			&report.RunbookID,
			&report.RunID,
			&report.Source,
			&report.Title,
			&report.Path,
			&report.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		reports = append(reports, &report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}

	return reports, nil
}

// DeleteReports removes reports by id set; sections cascade with them.
func (rr *ReportRepository) DeleteReports(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := rr.db.ExecContext(ctx, "DELETE FROM runbook_reports WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete reports: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// CreateSection inserts a report section. On a (source, report_id) collision
// it returns an empty id and no error, matching CreateReport.
func (rr *ReportRepository) CreateSection(ctx context.Context, section *models.RunbookReportSection) (string, error) {
	if err := validateStruct(section); err != nil {
		return "", err
	}

	if section.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("failed to generate report section ID: %w", err)
		}

		section.ID = id.String()
	}

	section.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO runbook_report_sections (id, report_id, source, title, page_number, page_count, path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source, report_id) DO NOTHING
		RETURNING id
	`

	var id string

	err := rr.db.QueryRowContext(ctx, query,
		section.ID,
		section.ReportID,
		section.Source,
		section.Title,
		section.PageNumber,
		section.PageCount,
		section.Path,
		section.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}

		return "", fmt.Errorf("failed to insert report section: %w", err)
	}

	return id, nil
}

// FilterSections returns report sections in page order.
func (rr *ReportRepository) FilterSections(ctx context.Context, filter persistence.ReportSectionFilter) ([]*models.RunbookReportSection, error) {
	where := []string{"1 = 1"}
	args := []any{}

	addWhere := func(condition string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(condition, len(args)))
	}

	if filter.ReportID != "" {
		addWhere("report_id = $%d", filter.ReportID)
	}

	if filter.Source != "" {
		addWhere("source = $%d", filter.Source)
	}

	if filter.Title != "" {
		addWhere("title ILIKE $%d", "%"+filter.Title+"%")
	}

	query := `
		SELECT id, report_id, source, title, page_number, page_count, path, created_at
		FROM runbook_report_sections
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY page_number ASC, created_at ASC`
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := rr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query report sections: %w", err)
	}

	defer closeRows(ctx, rr.logger, rows)

	sections := make([]*models.RunbookReportSection, 0)

	for rows.Next() {
		var section models.RunbookReportSection

		err := rows.Scan(
			&section.ID,
			&section.ReportID,
			&section.Source,
			&section.Title,
			&section.PageNumber,
			&section.PageCount,
			&section.Path,
			&section.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report section: %w", err)
		}

		sections = append(sections, &section)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report sections: %w", err)
	}

	return sections, nil
}

// DeleteSections removes sections by id set.
func (rr *ReportRepository) DeleteSections(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := rr.db.ExecContext(ctx, "DELETE FROM runbook_report_sections WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete report sections: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

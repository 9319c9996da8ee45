// Package postgresql provides the PostgreSQL persistence implementation for
// the runbook stores.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/linuxautomates/gitsei-sub043/pkg/persistence"
	"github.com/linuxautomates/gitsei-sub043/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	runbooks     *RunbookRepository
	runs         *RunRepository
	runningNodes *RunningNodeRepository
	reports      *ReportRepository
	templates    *TemplateRepository
}

// NewPersistence connects to PostgreSQL, runs pending schema migrations and
// wires the repositories. Template seeding is NOT run here; call
// Templates().SeedTemplates explicitly.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		runbooks:     NewRunbookRepository(database, logger),
		runs:         NewRunRepository(database, logger),
		runningNodes: NewRunningNodeRepository(database, logger),
		reports:      NewReportRepository(database, logger),
		templates:    NewTemplateRepository(database, logger),
	}, nil
}

// Runbooks returns the revision store.
func (p *Persistence) Runbooks() persistence.RevisionStore {
	return p.runbooks
}

// Runs returns the run store.
func (p *Persistence) Runs() persistence.RunStore {
	return p.runs
}

// RunningNodes returns the per-node execution store.
func (p *Persistence) RunningNodes() persistence.NodeRunStore {
	return p.runningNodes
}

// Reports returns the report store.
func (p *Persistence) Reports() persistence.ReportStore {
	return p.reports
}

// ReportSections returns the report section store.
func (p *Persistence) ReportSections() persistence.ReportSectionStore {
	return p.reports
}

// Templates returns the seeded template catalog.
func (p *Persistence) Templates() persistence.TemplateCatalog {
	return p.templates
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

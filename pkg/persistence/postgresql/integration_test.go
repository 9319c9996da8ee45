package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/linuxautomates/gitsei-sub043/pkg/models"
	"github.com/linuxautomates/gitsei-sub043/pkg/persistence"
	"github.com/linuxautomates/gitsei-sub043/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{
		"runbook_report_sections",
		"runbook_reports",
		"runbook_running_nodes",
		"runbook_runs",
		"runbooks",
		"runbook_templates",
		"runbook_node_templates",
		"runbook_template_categories",
		"schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("runbooks_test"),
			postgres.WithUsername("runbooks"),
			postgres.WithPassword("runbooks"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func testRunbook(name string) *models.Runbook {
	return &models.Runbook{
		Name:        name,
		Description: "restarts the checkout service",
		Enabled:     true,
		TriggerType: "manual",
		TriggerData: map[string]any{"approvers": []any{"oncall"}},
		Input:       map[string]any{"service": map[string]any{"type": "string"}},
		Nodes: map[string]any{
			"fetch":  map[string]any{"type": "http_call", "url": "https://internal/api/status"},
			"deploy": map[string]any{"type": "script", "after": "fetch"},
		},
		UIData:   map[string]any{"layout": map[string]any{"fetch": []any{float64(0), float64(0)}}},
		Settings: map[string]any{"timeout_seconds": float64(300)},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{
		"runbooks", "runbook_runs", "runbook_running_nodes",
		"runbook_reports", "runbook_report_sections",
		"runbook_templates", "runbook_node_templates", "runbook_template_categories",
		"schema_migrations",
	} {
		var exists bool

		err = db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`,
			table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var count int

	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestRunbookStore_CreateAndGet(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	runbook := testRunbook("Restart Checkout")

	id, permanentID, err := p.Runbooks().Create(ctx, runbook)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NotEmpty(t, permanentID)
	assert.False(t, runbook.CreatedAt.IsZero())

	retrieved, err := p.Runbooks().Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, id, retrieved.ID)
	assert.Equal(t, permanentID, retrieved.PermanentID)
	assert.Nil(t, retrieved.PreviousID)
	assert.Equal(t, runbook.Name, retrieved.Name)
	assert.Equal(t, runbook.TriggerType, retrieved.TriggerType)
	assert.Equal(t, runbook.Nodes, retrieved.Nodes)
	assert.Equal(t, runbook.TriggerData, retrieved.TriggerData)
	assert.Equal(t, runbook.Settings, retrieved.Settings)
	assert.Nil(t, retrieved.LastRunAt)

	// Absent documents come back as empty maps, never nil.
	sparse := &models.Runbook{Name: "Sparse", TriggerType: "manual"}

	sparseID, _, err := p.Runbooks().Create(ctx, sparse)
	require.NoError(t, err)

	retrieved, err = p.Runbooks().Get(ctx, sparseID)
	require.NoError(t, err)
	assert.NotNil(t, retrieved.Nodes)
	assert.Empty(t, retrieved.Nodes)
	assert.NotNil(t, retrieved.Input)

	_, err = p.Runbooks().Get(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))
}

func TestRunbookStore_RevisionChain(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	r0 := testRunbook("Restart Checkout")

	r0ID, permanentID, err := p.Runbooks().Create(ctx, r0)
	require.NoError(t, err)

	// A successor without an explicit permanent id inherits the chain's.
	r1 := testRunbook("Restart Checkout")
	r1.PreviousID = &r0ID
	r1.Nodes["notify"] = map[string]any{"type": "slack_message", "after": "deploy"}

	r1ID, r1PermanentID, err := p.Runbooks().Create(ctx, r1)
	require.NoError(t, err)
	assert.Equal(t, permanentID, r1PermanentID)

	latest, err := p.Runbooks().GetLatestByPermanentID(ctx, permanentID)
	require.NoError(t, err)
	assert.Equal(t, r1ID, latest.ID)

	latestID, err := p.Runbooks().GetLatestRevision(ctx, r0ID)
	require.NoError(t, err)
	assert.Equal(t, r1ID, latestID)

	newer, err := p.Runbooks().ListNewerRevisions(ctx, r0ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r0ID, r1ID}, newer)

	previous, err := p.Runbooks().ListPreviousRevisions(ctx, r1ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r1ID, r0ID}, previous)

	// Only the leaf matches OnlyLatestRevision.
	leaves, err := p.Runbooks().Filter(ctx, persistence.RunbookFilter{
		PermanentIDs:       []string{permanentID},
		OnlyLatestRevision: true,
	})
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, r1ID, leaves[0].ID)

	all, err := p.Runbooks().Filter(ctx, persistence.RunbookFilter{
		PermanentIDs: []string{permanentID},
	})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRunbookStore_Update(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	runbook := testRunbook("Restart Checkout")

	id, _, err := p.Runbooks().Create(ctx, runbook)
	require.NoError(t, err)

	created, err := p.Runbooks().Get(ctx, id)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	name := "Restart Checkout v2"
	enabled := false

	matched, err := p.Runbooks().Update(ctx, id, models.RunbookUpdate{
		Name:    &name,
		Enabled: &enabled,
		Nodes:   map[string]any{"fetch": map[string]any{"type": "http_call"}},
	})
	require.NoError(t, err)
	assert.True(t, matched)

	updated, err := p.Runbooks().Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, name, updated.Name)
	assert.False(t, updated.Enabled)
	assert.Equal(t, map[string]any{"fetch": map[string]any{"type": "http_call"}}, updated.Nodes)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	// Untouched fields survive a partial update.
	assert.Equal(t, created.Description, updated.Description)
	assert.Equal(t, created.TriggerData, updated.TriggerData)
	assert.Equal(t, created.Settings, updated.Settings)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	matched, err = p.Runbooks().Update(ctx, uuid.NewString(), models.RunbookUpdate{Name: &name})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestRunbookStore_PruneRevisions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	r0 := testRunbook("Restart Checkout")

	r0ID, _, err := p.Runbooks().Create(ctx, r0)
	require.NoError(t, err)

	r1 := testRunbook("Restart Checkout")
	r1.PreviousID = &r0ID

	r1ID, _, err := p.Runbooks().Create(ctx, r1)
	require.NoError(t, err)

	runID, err := p.Runs().Create(ctx, &models.RunbookRun{
		RunbookID:   r0ID,
		TriggerType: "manual",
	})
	require.NoError(t, err)

	// A run still references r0, so pruning below r1 is unsafe.
	ok, err := p.Runbooks().CanPruneRevisions(ctx, r1ID, false)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := p.Runs().Delete(ctx, runID)
	require.NoError(t, err)
	assert.True(t, deleted)

	ok, err = p.Runbooks().CanPruneRevisions(ctx, r1ID, false)
	require.NoError(t, err)
	assert.True(t, ok)

	pruned, err := p.Runbooks().DeletePreviousRevisions(ctx, r1ID, false)
	require.NoError(t, err)
	assert.True(t, pruned)

	_, err = p.Runbooks().Get(ctx, r0ID)
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))

	// The exclusive prune keeps the anchor revision itself.
	kept, err := p.Runbooks().Get(ctx, r1ID)
	require.NoError(t, err)
	assert.Equal(t, r1ID, kept.ID)

	// Nothing left below the anchor.
	pruned, err = p.Runbooks().DeletePreviousRevisions(ctx, r1ID, false)
	require.NoError(t, err)
	assert.False(t, pruned)
}

func TestRunStore_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	runbook := testRunbook("Restart Checkout")

	runbookID, permanentID, err := p.Runbooks().Create(ctx, runbook)
	require.NoError(t, err)

	runID, err := p.Runs().Create(ctx, &models.RunbookRun{
		RunbookID:   runbookID,
		TriggerType: "webhook",
		Args:        map[string]any{"service": "checkout"},
	})
	require.NoError(t, err)

	run, err := p.Runs().Get(ctx, runID)
	require.NoError(t, err)

	assert.Equal(t, models.RunStateRunning, run.State)
	assert.Nil(t, run.StateChangedAt, "state_changed_at stays unset until the first transition")
	assert.Equal(t, permanentID, run.RunbookPermanentID)
	assert.Equal(t, map[string]any{"service": "checkout"}, run.Args)

	// A result-only update does not count as a state transition.
	matched, err := p.Runs().Update(ctx, runID, models.RunUpdate{
		Result: map[string]any{"stdout": "restarting"},
	})
	require.NoError(t, err)
	assert.True(t, matched)

	run, err = p.Runs().Get(ctx, runID)
	require.NoError(t, err)
	assert.Nil(t, run.StateChangedAt)
	assert.Equal(t, map[string]any{"stdout": "restarting"}, run.Result)

	state := models.RunStateSuccess
	warnings := true

	matched, err = p.Runs().Update(ctx, runID, models.RunUpdate{
		State:       &state,
		HasWarnings: &warnings,
	})
	require.NoError(t, err)
	assert.True(t, matched)

	run, err = p.Runs().Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateSuccess, run.State)
	assert.True(t, run.HasWarnings)
	require.NotNil(t, run.StateChangedAt)
	firstTransition := *run.StateChangedAt

	time.Sleep(10 * time.Millisecond)

	// States outside the predeclared set are persisted untouched.
	custom := models.RunState("paused")

	_, err = p.Runs().Update(ctx, runID, models.RunUpdate{State: &custom})
	require.NoError(t, err)

	run, err = p.Runs().Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, custom, run.State)
	assert.False(t, run.State.IsKnown())
	assert.True(t, run.StateChangedAt.After(firstTransition))
}

func TestRunStore_FilterAndBulkDelete(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	runbookID, _, err := p.Runbooks().Create(ctx, testRunbook("Restart Checkout"))
	require.NoError(t, err)

	runIDs := make([]string, 0, 3)

	for range 3 {
		runID, err := p.Runs().Create(ctx, &models.RunbookRun{
			RunbookID:   runbookID,
			TriggerType: "scheduler",
		})
		require.NoError(t, err)

		runIDs = append(runIDs, runID)
	}

	failed := models.RunStateFailure

	_, err = p.Runs().Update(ctx, runIDs[1], models.RunUpdate{State: &failed})
	require.NoError(t, err)

	runs, err := p.Runs().Filter(ctx, persistence.RunFilter{RunbookID: runbookID})
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	failures, err := p.Runs().Filter(ctx, persistence.RunFilter{
		RunbookID: runbookID,
		States:    []models.RunState{models.RunStateFailure},
	})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, runIDs[1], failures[0].ID)

	deleted, err := p.Runs().DeleteBulk(ctx, runIDs[:2])
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	runs, err = p.Runs().Filter(ctx, persistence.RunFilter{RunbookID: runbookID})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runIDs[2], runs[0].ID)
}

func TestNodeRunStore_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	runbookID, _, err := p.Runbooks().Create(ctx, testRunbook("Restart Checkout"))
	require.NoError(t, err)

	runID, err := p.Runs().Create(ctx, &models.RunbookRun{RunbookID: runbookID, TriggerType: "manual"})
	require.NoError(t, err)

	fetchID, err := p.RunningNodes().Create(ctx, &models.RunbookRunningNode{
		RunID:  runID,
		NodeID: "fetch",
	})
	require.NoError(t, err)

	deployID, err := p.RunningNodes().Create(ctx, &models.RunbookRunningNode{
		RunID:       runID,
		NodeID:      "deploy",
		TriggeredBy: map[string]any{"node": "fetch", "port": "success"},
	})
	require.NoError(t, err)

	fetch, err := p.RunningNodes().Get(ctx, fetchID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStateWaiting, fetch.State)
	assert.Nil(t, fetch.StateChangedAt)
	assert.NotNil(t, fetch.TriggeredBy)
	assert.Empty(t, fetch.TriggeredBy, "roots get an empty cause document")

	state := models.NodeStateSuccess

	matched, err := p.RunningNodes().Update(ctx, fetchID, models.RunningNodeUpdate{
		State:  &state,
		Output: map[string]any{"status": float64(200)},
	})
	require.NoError(t, err)
	assert.True(t, matched)

	fetch, err = p.RunningNodes().Get(ctx, fetchID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStateSuccess, fetch.State)
	assert.NotNil(t, fetch.StateChangedAt)
	assert.Equal(t, map[string]any{"status": float64(200)}, fetch.Output)

	// Causal-edge equality lookup.
	triggered, err := p.RunningNodes().Filter(ctx, persistence.RunningNodeFilter{
		RunID:       runID,
		TriggeredBy: map[string]any{"node": "fetch", "port": "success"},
	})
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, deployID, triggered[0].ID)

	inOrder, err := p.RunningNodes().Filter(ctx, persistence.RunningNodeFilter{RunID: runID})
	require.NoError(t, err)
	require.Len(t, inOrder, 2)
	assert.Equal(t, "fetch", inOrder[0].NodeID)
	assert.Equal(t, "deploy", inOrder[1].NodeID)
}

func TestNodeRunStore_RetriesKeepHistory(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	runbookID, _, err := p.Runbooks().Create(ctx, testRunbook("Restart Checkout"))
	require.NoError(t, err)

	runID, err := p.Runs().Create(ctx, &models.RunbookRun{RunbookID: runbookID, TriggerType: "manual"})
	require.NoError(t, err)

	// The same node can be recorded twice within one run; each attempt is its
	// own row.
	for range 2 {
		_, err := p.RunningNodes().Create(ctx, &models.RunbookRunningNode{
			RunID:  runID,
			NodeID: "deploy",
		})
		require.NoError(t, err)
	}

	attempts, err := p.RunningNodes().Filter(ctx, persistence.RunningNodeFilter{
		RunID:   runID,
		NodeIDs: []string{"deploy"},
	})
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}

func TestNodeRunStore_CascadeWithRun(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	runbookID, _, err := p.Runbooks().Create(ctx, testRunbook("Restart Checkout"))
	require.NoError(t, err)

	runID, err := p.Runs().Create(ctx, &models.RunbookRun{RunbookID: runbookID, TriggerType: "manual"})
	require.NoError(t, err)

	nodeID, err := p.RunningNodes().Create(ctx, &models.RunbookRunningNode{RunID: runID, NodeID: "fetch"})
	require.NoError(t, err)

	deleted, err := p.Runs().Delete(ctx, runID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = p.RunningNodes().Get(ctx, nodeID)
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))
}

func TestReportStore_IdempotentCreate(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	runbookID, _, err := p.Runbooks().Create(ctx, testRunbook("Restart Checkout"))
	require.NoError(t, err)

	runID, err := p.Runs().Create(ctx, &models.RunbookRun{RunbookID: runbookID, TriggerType: "manual"})
	require.NoError(t, err)

	report := &models.RunbookReport{
		RunbookID: runbookID,
		RunID:     runID,
		Source:    "audit",
		Title:     "Restart audit trail",
		Path:      "s3://reports/audit/" + runID + ".pdf",
	}

	reportID, err := p.Reports().CreateReport(ctx, report)
	require.NoError(t, err)
	assert.NotEmpty(t, reportID)

	// Re-submitting the same (runbook, run, source) is a silent no-op.
	duplicateID, err := p.Reports().CreateReport(ctx, &models.RunbookReport{
		RunbookID: runbookID,
		RunID:     runID,
		Source:    "audit",
		Title:     "Restart audit trail resubmitted",
		Path:      "s3://reports/audit/other.pdf",
	})
	require.NoError(t, err)
	assert.Empty(t, duplicateID)

	retrieved, err := p.Reports().GetReport(ctx, reportID)
	require.NoError(t, err)
	assert.Equal(t, "Restart audit trail", retrieved.Title)

	reports, err := p.Reports().FilterReports(ctx, persistence.ReportFilter{RunID: runID})
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestReportSectionStore_PagesAndCascade(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	runbookID, _, err := p.Runbooks().Create(ctx, testRunbook("Restart Checkout"))
	require.NoError(t, err)

	runID, err := p.Runs().Create(ctx, &models.RunbookRun{RunbookID: runbookID, TriggerType: "manual"})
	require.NoError(t, err)

	reportID, err := p.Reports().CreateReport(ctx, &models.RunbookReport{
		RunbookID: runbookID,
		RunID:     runID,
		Source:    "audit",
		Path:      "s3://reports/audit/report.pdf",
	})
	require.NoError(t, err)

	for page := 2; page >= 1; page-- {
		sectionID, err := p.ReportSections().CreateSection(ctx, &models.RunbookReportSection{
			ReportID:   reportID,
			Source:     "audit-page-" + string(rune('0'+page)),
			PageNumber: page,
			PageCount:  2,
			Path:       "s3://reports/audit/report-" + string(rune('0'+page)) + ".pdf",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, sectionID)
	}

	// Duplicate (source, report) is a silent no-op, like reports.
	duplicateID, err := p.ReportSections().CreateSection(ctx, &models.RunbookReportSection{
		ReportID:   reportID,
		Source:     "audit-page-1",
		PageNumber: 1,
		PageCount:  2,
	})
	require.NoError(t, err)
	assert.Empty(t, duplicateID)

	sections, err := p.ReportSections().FilterSections(ctx, persistence.ReportSectionFilter{ReportID: reportID})
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, 1, sections[0].PageNumber)
	assert.Equal(t, 2, sections[1].PageNumber)

	deleted, err := p.Reports().DeleteReports(ctx, []string{reportID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	sections, err = p.ReportSections().FilterSections(ctx, persistence.ReportSectionFilter{ReportID: reportID})
	require.NoError(t, err)
	assert.Empty(t, sections)
}

func TestTemplateCatalog_SeedIsIdempotent(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.Templates().SeedTemplates(ctx)
	require.NoError(t, err)

	categories, err := p.Templates().FilterCategories(ctx, persistence.TemplateCategoryFilter{})
	require.NoError(t, err)
	assert.NotEmpty(t, categories)

	templates, err := p.Templates().FilterTemplates(ctx, persistence.TemplateFilter{})
	require.NoError(t, err)
	assert.NotEmpty(t, templates)

	nodeTemplates, err := p.Templates().FilterNodeTemplates(ctx, persistence.NodeTemplateFilter{})
	require.NoError(t, err)
	assert.NotEmpty(t, nodeTemplates)

	// Seeding again changes nothing: same natural keys, same counts.
	err = p.Templates().SeedTemplates(ctx)
	require.NoError(t, err)

	reseeded, err := p.Templates().FilterTemplates(ctx, persistence.TemplateFilter{})
	require.NoError(t, err)
	assert.Len(t, reseeded, len(templates))

	visible := false

	unhidden, err := p.Templates().FilterNodeTemplates(ctx, persistence.NodeTemplateFilter{Hidden: &visible})
	require.NoError(t, err)
	assert.Less(t, len(unhidden), len(nodeTemplates), "bundle ships at least one hidden node template")
}

package postgresql

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/linuxautomates/gitsei-sub043/pkg/models"
	"github.com/linuxautomates/gitsei-sub043/pkg/persistence"
)

//go:embed seed/templates.yaml
var seedCatalogYAML []byte

//go:embed seed/catalog_schema.json
var seedCatalogSchema []byte

// seedCatalog is the bundled template catalog shipped with the binary.
type seedCatalog struct {
	Categories []struct {
		Name        string `yaml:"name"        json:"name"`
		Description string `yaml:"description" json:"description"`
		Hidden      bool   `yaml:"hidden"      json:"hidden"`
	} `yaml:"categories" json:"categories"`
	Templates []struct {
		Name        string         `yaml:"name"        json:"name"`
		Category    string         `yaml:"category"    json:"category"`
		Description string         `yaml:"description" json:"description"`
		Hidden      bool           `yaml:"hidden"      json:"hidden"`
		Spec        map[string]any `yaml:"spec"        json:"spec,omitempty"`
	} `yaml:"templates" json:"templates"`
	NodeTemplates []struct {
		Type        string         `yaml:"type"        json:"type"`
		Name        string         `yaml:"name"        json:"name"`
		Description string         `yaml:"description" json:"description"`
		Hidden      bool           `yaml:"hidden"      json:"hidden"`
		Config      map[string]any `yaml:"config"      json:"config,omitempty"`
	} `yaml:"node_templates" json:"node_templates"`
}

// TemplateRepository is the read-mostly catalog of reusable workflow and node
// definitions. It is populated by an explicit, idempotent SeedTemplates call,
// never as a side effect of schema migration.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template catalog repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

// SeedTemplates upserts the bundled catalog on its natural keys. Safe to run
// on every startup: unchanged entries are rewritten in place, operator edits
// to non-seeded rows are untouched.
func (tr *TemplateRepository) SeedTemplates(ctx context.Context) error {
	catalog, err := loadSeedCatalog()
	if err != nil {
		return err
	}

	tx, err := tr.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}

	err = tr.seedCatalogTx(ctx, tx, catalog)
	if err != nil {
		_ = tx.Rollback()

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	tr.logger.InfoContext(ctx, "Template catalog seeded",
		"categories", len(catalog.Categories),
		"templates", len(catalog.Templates),
		"node_templates", len(catalog.NodeTemplates),
	)

	return nil
}

// loadSeedCatalog parses the embedded catalog and validates it against the
// embedded JSON schema before anything touches the database.
func loadSeedCatalog() (*seedCatalog, error) {
	var catalog seedCatalog

	err := yaml.Unmarshal(seedCatalogYAML, &catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed catalog: %w", err)
	}

	document, err := json.Marshal(&catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal seed catalog for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(seedCatalogSchema),
		gojsonschema.NewBytesLoader(document),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate seed catalog: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			details = append(details, resultErr.String())
		}

		return nil, fmt.Errorf("%w: seed catalog invalid: %s", persistence.ErrValidation, strings.Join(details, "; "))
	}

	return &catalog, nil
}

func (tr *TemplateRepository) seedCatalogTx(ctx context.Context, tx *sql.Tx, catalog *seedCatalog) error {
	now := time.Now().UTC()

	categoryQuery := `
		INSERT INTO runbook_template_categories (id, name, description, hidden, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			hidden = EXCLUDED.hidden
	`

	for _, category := range catalog.Categories {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate category ID: %w", err)
		}

		_, err = tx.ExecContext(ctx, categoryQuery, id.String(), category.Name, category.Description, category.Hidden, now)
		if err != nil {
			return fmt.Errorf("failed to seed category %q: %w", category.Name, err)
		}
	}

	templateQuery := `
		INSERT INTO runbook_templates (id, name, category, description, hidden, spec, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name, category) DO UPDATE SET
			description = EXCLUDED.description,
			hidden = EXCLUDED.hidden,
			spec = EXCLUDED.spec
	`

	for _, template := range catalog.Templates {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		specJSON, err := marshalDoc(template.Spec)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, templateQuery,
			id.String(), template.Name, template.Category, template.Description, template.Hidden, specJSON, now)
		if err != nil {
			return fmt.Errorf("failed to seed template %q: %w", template.Name, err)
		}
	}

	nodeTemplateQuery := `
		INSERT INTO runbook_node_templates (id, type, name, description, hidden, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (type) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			hidden = EXCLUDED.hidden,
			config = EXCLUDED.config
	`

	for _, nodeTemplate := range catalog.NodeTemplates {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate node template ID: %w", err)
		}

		configJSON, err := marshalDoc(nodeTemplate.Config)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, nodeTemplateQuery,
			id.String(), nodeTemplate.Type, nodeTemplate.Name, nodeTemplate.Description, nodeTemplate.Hidden, configJSON, now)
		if err != nil {
			return fmt.Errorf("failed to seed node template %q: %w", nodeTemplate.Type, err)
		}
	}

	return nil
}

// FilterTemplates returns catalog workflow templates.
func (tr *TemplateRepository) FilterTemplates(ctx context.Context, filter persistence.TemplateFilter) ([]*models.RunbookTemplate, error) {
	where := []string{"1 = 1"}
	args := []any{}

	addWhere := func(condition string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(condition, len(args)))
	}

	if filter.Name != "" {
		addWhere("name ILIKE $%d", "%"+filter.Name+"%")
	}

	if len(filter.IDs) > 0 {
		addWhere("id = ANY($%d)", pq.Array(filter.IDs))
	}

	if len(filter.Categories) > 0 {
		addWhere("category = ANY($%d)", pq.Array(filter.Categories))
	}

	if filter.Hidden != nil {
		addWhere("hidden = $%d", *filter.Hidden)
	}

	query := `
		SELECT id, name, category, description, hidden, spec, created_at
		FROM runbook_templates
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY category ASC, name ASC`
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := tr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer closeRows(ctx, tr.logger, rows)

	templates := make([]*models.RunbookTemplate, 0)

	for rows.Next() {
		var (
			template models.RunbookTemplate
			specJSON []byte
		)

		err := rows.Scan(
			&template.ID,
			&template.Name,
			&template.Category,
			&template.Description,
			&template.Hidden,
			&specJSON,
			&template.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		if err := unmarshalDoc(specJSON, &template.Spec); err != nil {
			return nil, err
		}

		templates = append(templates, &template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// FilterNodeTemplates returns catalog node templates.
func (tr *TemplateRepository) FilterNodeTemplates(ctx context.Context, filter persistence.NodeTemplateFilter) ([]*models.RunbookNodeTemplate, error) {
	where := []string{"1 = 1"}
	args := []any{}

	addWhere := func(condition string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(condition, len(args)))
	}

	if filter.Name != "" {
		addWhere("name ILIKE $%d", "%"+filter.Name+"%")
	}

	if len(filter.IDs) > 0 {
		addWhere("id = ANY($%d)", pq.Array(filter.IDs))
	}

	if len(filter.Types) > 0 {
		addWhere("type = ANY($%d)", pq.Array(filter.Types))
	}

	if filter.Hidden != nil {
		addWhere("hidden = $%d", *filter.Hidden)
	}

	query := `
		SELECT id, type, name, description, hidden, config, created_at
		FROM runbook_node_templates
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY type ASC`
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := tr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query node templates: %w", err)
	}

	defer closeRows(ctx, tr.logger, rows)

	nodeTemplates := make([]*models.RunbookNodeTemplate, 0)

	for rows.Next() {
		var (
			nodeTemplate models.RunbookNodeTemplate
			configJSON   []byte
		)

		err := rows.Scan(
			&nodeTemplate.ID,
			&nodeTemplate.Type,
			&nodeTemplate.Name,
			&nodeTemplate.Description,
			&nodeTemplate.Hidden,
			&configJSON,
			&nodeTemplate.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node template: %w", err)
		}

		if err := unmarshalDoc(configJSON, &nodeTemplate.Config); err != nil {
			return nil, err
		}

		nodeTemplates = append(nodeTemplates, &nodeTemplate)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node templates: %w", err)
	}

	return nodeTemplates, nil
}

// FilterCategories returns catalog categories.
func (tr *TemplateRepository) FilterCategories(ctx context.Context, filter persistence.TemplateCategoryFilter) ([]*models.RunbookTemplateCategory, error) {
	where := []string{"1 = 1"}
	args := []any{}

	addWhere := func(condition string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(condition, len(args)))
	}

	if filter.Name != "" {
		addWhere("name ILIKE $%d", "%"+filter.Name+"%")
	}

	if len(filter.IDs) > 0 {
		addWhere("id = ANY($%d)", pq.Array(filter.IDs))
	}

	if filter.Hidden != nil {
		addWhere("hidden = $%d", *filter.Hidden)
	}

	query := `
		SELECT id, name, description, hidden, created_at
		FROM runbook_template_categories
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY name ASC`
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := tr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query template categories: %w", err)
	}

	defer closeRows(ctx, tr.logger, rows)

	categories := make([]*models.RunbookTemplateCategory, 0)

	for rows.Next() {
		var category models.RunbookTemplateCategory

		err := rows.Scan(
			&category.ID,
			&category.Name,
			&category.Description,
			&category.Hidden,
			&category.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template category: %w", err)
		}

		categories = append(categories, &category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating template categories: %w", err)
	}

	return categories, nil
}

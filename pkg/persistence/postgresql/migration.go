package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Runbook revisions. previous_id is a soft link: pruning deletes
			-- ancestors without touching children, so no self-referencing FK.
			CREATE TABLE runbooks (
				id UUID PRIMARY KEY,
				permanent_id UUID NOT NULL,
				previous_id UUID,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				enabled BOOLEAN NOT NULL DEFAULT true,
				trigger_type VARCHAR(100) NOT NULL,
				trigger_template_type VARCHAR(100),
				trigger_data JSONB NOT NULL DEFAULT '{}',
				input JSONB NOT NULL DEFAULT '{}',
				nodes JSONB NOT NULL DEFAULT '{}',
				ui_data JSONB NOT NULL DEFAULT '{}',
				settings JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_run_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_runbooks_permanent_id ON runbooks(permanent_id);
			CREATE INDEX idx_runbooks_previous_id ON runbooks(previous_id);
			CREATE INDEX idx_runbooks_trigger_type ON runbooks(trigger_type);
			CREATE INDEX idx_runbooks_updated_at ON runbooks(updated_at);

			-- Runs reference a specific revision without an FK: revision pruning
			-- may leave dangling runbook_id values, callers gate on
			-- CanPruneRevisions.
			CREATE TABLE runbook_runs (
				id UUID PRIMARY KEY,
				runbook_id UUID NOT NULL,
				trigger_type VARCHAR(100) NOT NULL,
				args JSONB NOT NULL DEFAULT '{}',
				state VARCHAR(50) NOT NULL,
				result JSONB NOT NULL DEFAULT '{}',
				has_warnings BOOLEAN NOT NULL DEFAULT false,
				state_changed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_runbook_runs_runbook_id ON runbook_runs(runbook_id);
			CREATE INDEX idx_runbook_runs_state ON runbook_runs(state);
			CREATE INDEX idx_runbook_runs_state_changed_at ON runbook_runs(state_changed_at);

			-- Per-node execution state within a run. (run_id, node_id) is NOT
			-- unique: repeated attempts at a node are kept as history.
			CREATE TABLE runbook_running_nodes (
				id UUID PRIMARY KEY,
				run_id UUID NOT NULL REFERENCES runbook_runs(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				triggered_by JSONB NOT NULL DEFAULT '{}',
				output JSONB NOT NULL DEFAULT '{}',
				data JSONB NOT NULL DEFAULT '{}',
				result JSONB NOT NULL DEFAULT '{}',
				state VARCHAR(50) NOT NULL,
				has_warnings BOOLEAN NOT NULL DEFAULT false,
				state_changed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_runbook_running_nodes_run_id ON runbook_running_nodes(run_id);
			CREATE INDEX idx_runbook_running_nodes_node_id ON runbook_running_nodes(node_id);
			CREATE INDEX idx_runbook_running_nodes_state ON runbook_running_nodes(state);
		`,
		2: `
			-- Report metadata pointing at externally stored blobs.
			CREATE TABLE runbook_reports (
				id UUID PRIMARY KEY,
				runbook_id UUID NOT NULL,
				run_id UUID NOT NULL,
				source VARCHAR(100) NOT NULL,
				title VARCHAR(255) NOT NULL DEFAULT '',
				path TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (runbook_id, run_id, source)
			);

			CREATE INDEX idx_runbook_reports_run_id ON runbook_reports(run_id);

			CREATE TABLE runbook_report_sections (
				id UUID PRIMARY KEY,
				report_id UUID NOT NULL REFERENCES runbook_reports(id) ON DELETE CASCADE,
				source VARCHAR(100) NOT NULL,
				title VARCHAR(255) NOT NULL DEFAULT '',
				page_number INT NOT NULL DEFAULT 0,
				page_count INT NOT NULL DEFAULT 0,
				path TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (source, report_id)
			);

			CREATE INDEX idx_runbook_report_sections_report_id ON runbook_report_sections(report_id);
		`,
		3: `
			-- Seeded template catalog, keyed by natural keys. Seeding itself is
			-- an explicit step (SeedTemplates), not part of migration.
			CREATE TABLE runbook_template_categories (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				hidden BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE runbook_templates (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				category VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				hidden BOOLEAN NOT NULL DEFAULT false,
				spec JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (name, category)
			);

			CREATE TABLE runbook_node_templates (
				id UUID PRIMARY KEY,
				type VARCHAR(255) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				hidden BOOLEAN NOT NULL DEFAULT false,
				config JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}

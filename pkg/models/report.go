package models

import "time"

// RunbookReport points at a run artifact stored in external blob storage.
// Reports are immutable once written; re-submitting the same (runbook, run,
// source) triple is treated as a no-op by the store.
type RunbookReport struct {
	ID        string    `json:"id"`
	RunbookID string    `json:"runbook_id" validate:"required"`
	RunID     string    `json:"run_id"     validate:"required"`
	Source    string    `json:"source"     validate:"required"`
	Title     string    `json:"title"`
	Path      string    `json:"path"` // location of the blob in external storage
	CreatedAt time.Time `json:"created_at"`
}

// RunbookReportSection is one page of a paginated report artifact, keyed by
// (source, report_id).
type RunbookReportSection struct {
	ID         string    `json:"id"`
	ReportID   string    `json:"report_id" validate:"required"`
	Source     string    `json:"source"    validate:"required"`
	Title      string    `json:"title"`
	PageNumber int       `json:"page_number"`
	PageCount  int       `json:"page_count"`
	Path       string    `json:"path"`
	CreatedAt  time.Time `json:"created_at"`
}

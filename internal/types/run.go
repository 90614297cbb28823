package types

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a generation batch.
type RunStatus string

// Run lifecycle states. A run transitions pending -> running immediately and
// reaches completed once every item has been attempted; failed is reserved for
// catastrophic pre-item-loop errors.
const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunItemStatus is the lifecycle state of one item within a run.
type RunItemStatus string

// Run item states. Rejected items are never deleted; they remain visible for
// diagnosis.
const (
	ItemPending   RunItemStatus = "pending"
	ItemGenerated RunItemStatus = "generated"
	ItemApplied   RunItemStatus = "applied"
	ItemRejected  RunItemStatus = "rejected"
)

// Run represents one generation batch. Runs are never retried as a whole.
type Run struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   string     `json:"project_id"`
	TemplateRef string     `json:"template_ref,omitempty"`
	Status      RunStatus  `json:"status"`
	ContextRefs []string   `json:"context_refs,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunItem represents one work item within a run, carrying its before and
// after snapshots. The orchestrator moves it pending -> generated|rejected;
// the sync engine moves it generated -> applied|rejected.
type RunItem struct {
	ID           uuid.UUID         `json:"id"`
	RunID        uuid.UUID         `json:"run_id"`
	SourceItemID string            `json:"source_item_id"`
	Before       *WorkItemSnapshot `json:"before,omitempty"`
	After        *WorkItemSnapshot `json:"after,omitempty"`
	Status       RunItemStatus     `json:"status"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

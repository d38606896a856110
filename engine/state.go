package engine

import (
	"time"

	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// ============================================================================
// Active Workflow Registration
// ============================================================================

// ActiveWorkflowRegistration is the executor's runtime snapshot of an
// activated workflow. It is taken at activation time and is
// independent of the persisted WorkflowDefinition: the two can drift
// (edits after activation, process restarts) and the debug surface
// exists to detect exactly that.
type ActiveWorkflowRegistration struct {
	WorkflowID   kernel.WorkflowID `json:"workflow_id"`
	Name         string            `json:"name"`
	IsActive     bool              `json:"is_active"`
	RegisteredAt time.Time         `json:"registered_at"`
	TriggerURLs  []string          `json:"trigger_urls,omitempty"`
	Nodes        []Node            `json:"nodes"`
	Edges        []Edge            `json:"edges"`
}

// RegistryStats operational counters for the debug surface
type RegistryStats struct {
	ActiveCount   int       `json:"active_count"`
	NodeCount     int       `json:"node_count"`
	TriggerCount  int       `json:"trigger_count"`
	OldestEntry   time.Time `json:"oldest_entry,omitempty"`
	NewestEntry   time.Time `json:"newest_entry,omitempty"`
	CollectedAt   time.Time `json:"collected_at"`
	WorkflowIDs   []string  `json:"workflow_ids"`
	RestartedCold bool      `json:"restarted_cold"`
}

// DriftStatus classifies registry vs persisted state for one workflow
type DriftStatus string

const (
	DriftNone             DriftStatus = "IN_SYNC"
	DriftOnlyRegistered   DriftStatus = "REGISTERED_NOT_PERSISTED" // in memory, persisted flag off
	DriftOnlyPersisted    DriftStatus = "PERSISTED_NOT_REGISTERED" // flag on, missing from memory
	DriftSnapshotOutdated DriftStatus = "SNAPSHOT_OUTDATED"        // both, but graphs differ
)

// DriftReport is one row of the debug comparison
type DriftReport struct {
	WorkflowID  kernel.WorkflowID `json:"workflow_id"`
	Status      DriftStatus       `json:"status"`
	Persisted   bool              `json:"persisted_active"`
	Registered  bool              `json:"registered"`
	NodeCounts  [2]int            `json:"node_counts"` // persisted, registered
	CheckedAt   time.Time         `json:"checked_at"`
	Description string            `json:"description,omitempty"`
}

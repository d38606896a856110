package activeregistry

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/Abraxas-365/craftable/errx"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// ============================================================================
// In-Memory Active Workflow Registry
// ============================================================================

// Registry holds the runtime snapshots of activated workflows. It is
// process-local: a restart empties it, which is exactly the drift the
// debug surface reports against the persisted active flags.
type Registry struct {
	mu        sync.RWMutex
	active    map[kernel.WorkflowID]engine.ActiveWorkflowRegistration
	startedAt time.Time
	restored  int
}

var _ engine.ActiveWorkflowRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		active:    make(map[kernel.WorkflowID]engine.ActiveWorkflowRegistration),
		startedAt: time.Now(),
	}
}

// Activate snapshots the workflow graph at activation time. The
// snapshot is intentionally a copy: later edits to the persisted
// definition do not leak into the running registration.
func (r *Registry) Activate(wf engine.Workflow, triggerURLs []string) engine.ActiveWorkflowRegistration {
	registration := engine.ActiveWorkflowRegistration{
		WorkflowID:   wf.ID,
		Name:         wf.Name,
		IsActive:     true,
		RegisteredAt: time.Now(),
		TriggerURLs:  append([]string(nil), triggerURLs...),
		Nodes:        append([]engine.Node(nil), wf.Nodes...),
		Edges:        append([]engine.Edge(nil), wf.Edges...),
	}

	r.mu.Lock()
	r.active[wf.ID] = registration
	r.mu.Unlock()

	log.Printf("✅ Workflow activated: %s (%s) with %d nodes", wf.Name, wf.ID, len(wf.Nodes))
	return registration
}

// RemoveActiveWorkflow drops a registration. Returns false when the
// workflow was not registered, which callers treat as already-inactive
// rather than an error.
func (r *Registry) RemoveActiveWorkflow(id kernel.WorkflowID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[id]; !ok {
		return false
	}
	delete(r.active, id)
	log.Printf("🛑 Workflow deactivated: %s", id)
	return true
}

func (r *Registry) Get(id kernel.WorkflowID) (*engine.ActiveWorkflowRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registration, ok := r.active[id]
	if !ok {
		return nil, false
	}
	return &registration, true
}

// GetActiveWorkflows returns all registrations sorted by registration time
func (r *Registry) GetActiveWorkflows() []engine.ActiveWorkflowRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registrations := make([]engine.ActiveWorkflowRegistration, 0, len(r.active))
	for _, registration := range r.active {
		registrations = append(registrations, registration)
	}
	sort.Slice(registrations, func(i, j int) bool {
		return registrations[i].RegisteredAt.Before(registrations[j].RegisteredAt)
	})
	return registrations
}

func (r *Registry) GetWorkflowStats() engine.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := engine.RegistryStats{
		ActiveCount:   len(r.active),
		CollectedAt:   time.Now(),
		WorkflowIDs:   make([]string, 0, len(r.active)),
		RestartedCold: r.restored == 0 && len(r.active) == 0,
	}

	for id, registration := range r.active {
		stats.WorkflowIDs = append(stats.WorkflowIDs, id.String())
		stats.NodeCount += len(registration.Nodes)
		for _, node := range registration.Nodes {
			if node.Type.IsTrigger() {
				stats.TriggerCount++
			}
		}
		if stats.OldestEntry.IsZero() || registration.RegisteredAt.Before(stats.OldestEntry) {
			stats.OldestEntry = registration.RegisteredAt
		}
		if registration.RegisteredAt.After(stats.NewestEntry) {
			stats.NewestEntry = registration.RegisteredAt
		}
	}
	sort.Strings(stats.WorkflowIDs)

	return stats
}

// MarkRestored records that a boot reconcile repopulated the registry,
// so stats stop reporting a cold start.
func (r *Registry) MarkRestored(count int) {
	r.mu.Lock()
	r.restored += count
	r.mu.Unlock()
}

// ============================================================================
// Drift Detection
// ============================================================================

// DriftDetector compares the in-memory registry against the persisted
// workflow store. It reports drift, it never repairs it: reconciling
// is a separate, explicit operation.
type DriftDetector struct {
	registry *Registry
	repo     engine.WorkflowRepository
}

func NewDriftDetector(registry *Registry, repo engine.WorkflowRepository) *DriftDetector {
	return &DriftDetector{registry: registry, repo: repo}
}

// Check classifies a single workflow
func (d *DriftDetector) Check(ctx context.Context, id kernel.WorkflowID) (engine.DriftReport, error) {
	report := engine.DriftReport{
		WorkflowID: id,
		CheckedAt:  time.Now(),
	}

	persisted, err := d.repo.FindByID(ctx, id)
	if err != nil {
		// A registration can outlive its workflow row
		if !errx.IsType(err, errx.TypeNotFound) {
			return report, err
		}
		persisted = nil
	}

	registration, registered := d.registry.Get(id)
	report.Registered = registered
	report.Persisted = persisted != nil && persisted.IsActive

	switch {
	case !report.Persisted && !registered:
		report.Status = engine.DriftNone
		report.Description = "inactive everywhere"
	case report.Persisted && !registered:
		report.Status = engine.DriftOnlyPersisted
		report.Description = "marked active in storage but not registered with the executor"
	case !report.Persisted && registered:
		report.Status = engine.DriftOnlyRegistered
		report.Description = "registered with the executor but storage says inactive"
	default:
		report.NodeCounts = [2]int{len(persisted.Nodes), len(registration.Nodes)}
		if graphsDiffer(persisted, registration) {
			report.Status = engine.DriftSnapshotOutdated
			report.Description = "persisted definition changed after activation"
		} else {
			report.Status = engine.DriftNone
		}
	}

	return report, nil
}

// CheckAll reports drift across the union of persisted-active and
// registered workflows
func (d *DriftDetector) CheckAll(ctx context.Context) ([]engine.DriftReport, error) {
	ids := make(map[kernel.WorkflowID]bool)

	persisted, err := d.repo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, wf := range persisted {
		ids[wf.ID] = true
	}
	for _, registration := range d.registry.GetActiveWorkflows() {
		ids[registration.WorkflowID] = true
	}

	reports := make([]engine.DriftReport, 0, len(ids))
	for id := range ids {
		report, err := d.Check(ctx, id)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].WorkflowID.String() < reports[j].WorkflowID.String()
	})

	return reports, nil
}

// Reconcile forces the registry to match persisted state for one
// workflow and reports what it did
func (d *DriftDetector) Reconcile(ctx context.Context, id kernel.WorkflowID, triggerURLs []string) (engine.ReconcileResponse, error) {
	before, err := d.Check(ctx, id)
	if err != nil {
		return engine.ReconcileResponse{}, err
	}

	response := engine.ReconcileResponse{
		WorkflowID: id,
		Before:     before.Status,
		Action:     "none",
	}

	switch before.Status {
	case engine.DriftOnlyPersisted, engine.DriftSnapshotOutdated:
		persisted, err := d.repo.FindByID(ctx, id)
		if err != nil {
			return response, err
		}
		d.registry.Activate(*persisted, triggerURLs)
		response.Action = "re-registered from storage"
	case engine.DriftOnlyRegistered:
		d.registry.RemoveActiveWorkflow(id)
		response.Action = "removed stale registration"
	}

	after, err := d.Check(ctx, id)
	if err != nil {
		return response, err
	}
	response.After = after.Status

	log.Printf("🔄 Reconciled workflow %s: %s -> %s (%s)", id, response.Before, response.After, response.Action)
	return response, nil
}

func graphsDiffer(persisted *engine.Workflow, registration *engine.ActiveWorkflowRegistration) bool {
	if len(persisted.Nodes) != len(registration.Nodes) || len(persisted.Edges) != len(registration.Edges) {
		return true
	}

	byID := make(map[string]engine.Node, len(registration.Nodes))
	for _, node := range registration.Nodes {
		byID[node.ID] = node
	}
	for _, node := range persisted.Nodes {
		snapshot, ok := byID[node.ID]
		if !ok || snapshot.Type != node.Type || snapshot.Label != node.Label {
			return true
		}
		if !reflect.DeepEqual(snapshot.Config, node.Config) {
			return true
		}
	}

	edgeKey := func(e engine.Edge) string { return fmt.Sprintf("%s->%s:%s", e.From, e.To, e.Port) }
	edges := make(map[string]bool, len(registration.Edges))
	for _, edge := range registration.Edges {
		edges[edgeKey(edge)] = true
	}
	for _, edge := range persisted.Edges {
		if !edges[edgeKey(edge)] {
			return true
		}
	}

	return false
}

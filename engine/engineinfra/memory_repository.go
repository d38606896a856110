package engineinfra

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Abraxas-365/craftable/storex"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// MemoryWorkflowRepository keeps workflows in a map. Used in tests and
// local development without Postgres.
type MemoryWorkflowRepository struct {
	mu        sync.RWMutex
	workflows map[kernel.WorkflowID]engine.Workflow
}

var _ engine.WorkflowRepository = (*MemoryWorkflowRepository)(nil)

func NewMemoryWorkflowRepository() *MemoryWorkflowRepository {
	return &MemoryWorkflowRepository{
		workflows: make(map[kernel.WorkflowID]engine.Workflow),
	}
}

func (r *MemoryWorkflowRepository) Save(ctx context.Context, wf engine.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.workflows {
		if existing.ID != wf.ID && existing.OwnerID == wf.OwnerID && existing.Name == wf.Name {
			return engine.ErrWorkflowAlreadyExists().
				WithDetail("name", wf.Name).
				WithDetail("owner_id", wf.OwnerID.String())
		}
	}

	r.workflows[wf.ID] = wf
	return nil
}

func (r *MemoryWorkflowRepository) FindByID(ctx context.Context, id kernel.WorkflowID) (*engine.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[id]
	if !ok {
		return nil, engine.ErrWorkflowNotFound().WithDetail("workflow_id", id.String())
	}

	copied := wf
	return &copied, nil
}

func (r *MemoryWorkflowRepository) Delete(ctx context.Context, id kernel.WorkflowID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[id]; !ok {
		return engine.ErrWorkflowNotFound().WithDetail("workflow_id", id.String())
	}

	delete(r.workflows, id)
	return nil
}

func (r *MemoryWorkflowRepository) FindByOwner(ctx context.Context, ownerID kernel.UserID) ([]*engine.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*engine.Workflow
	for _, wf := range r.workflows {
		if wf.OwnerID == ownerID {
			copied := wf
			result = append(result, &copied)
		}
	}

	sortWorkflowsByName(result)
	return result, nil
}

func (r *MemoryWorkflowRepository) FindActive(ctx context.Context) ([]*engine.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*engine.Workflow
	for _, wf := range r.workflows {
		if wf.IsActive {
			copied := wf
			result = append(result, &copied)
		}
	}

	sortWorkflowsByName(result)
	return result, nil
}

func (r *MemoryWorkflowRepository) List(ctx context.Context, req engine.WorkflowListRequest) (engine.WorkflowListResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []engine.Workflow
	for _, wf := range r.workflows {
		if req.OwnerID != "" && wf.OwnerID != req.OwnerID {
			continue
		}
		if req.IsActive != nil && wf.IsActive != *req.IsActive {
			continue
		}
		if req.Search != "" {
			needle := strings.ToLower(req.Search)
			if !strings.Contains(strings.ToLower(wf.Name), needle) &&
				!strings.Contains(strings.ToLower(wf.Description), needle) {
				continue
			}
		}
		matched = append(matched, wf)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := len(matched)
	offset := req.GetOffset()
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + req.PageSize
	if req.PageSize <= 0 || end > total {
		end = total
	}

	return storex.NewPaginated(matched[offset:end], req.Page, req.PageSize, total), nil
}

func (r *MemoryWorkflowRepository) SetActive(ctx context.Context, id kernel.WorkflowID, isActive bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wf, ok := r.workflows[id]
	if !ok {
		return engine.ErrWorkflowNotFound().WithDetail("workflow_id", id.String())
	}

	wf.IsActive = isActive
	r.workflows[id] = wf
	return nil
}

func sortWorkflowsByName(workflows []*engine.Workflow) {
	sort.Slice(workflows, func(i, j int) bool { return workflows[i].Name < workflows[j].Name })
}

// MemoryExecutionLogRepository keeps the bounded run log in memory.
type MemoryExecutionLogRepository struct {
	mu      sync.RWMutex
	cap     int
	entries map[kernel.WorkflowID][]engine.ExecutionLogEntry
}

var _ engine.ExecutionLogRepository = (*MemoryExecutionLogRepository)(nil)

// NewMemoryExecutionLogRepository keeps at most logCap entries per
// workflow; logCap <= 0 falls back to the default.
func NewMemoryExecutionLogRepository(logCap int) *MemoryExecutionLogRepository {
	if logCap <= 0 {
		logCap = defaultLogEntriesPerWorkflow
	}
	return &MemoryExecutionLogRepository{
		cap:     logCap,
		entries: make(map[kernel.WorkflowID][]engine.ExecutionLogEntry),
	}
}

func (r *MemoryExecutionLogRepository) Append(ctx context.Context, entry engine.ExecutionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := append(r.entries[entry.WorkflowID], entry)
	if len(log) > r.cap {
		log = log[len(log)-r.cap:]
	}
	r.entries[entry.WorkflowID] = log
	return nil
}

func (r *MemoryExecutionLogRepository) Recent(ctx context.Context, workflowID kernel.WorkflowID, limit int) ([]engine.ExecutionLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.entries[workflowID]
	if limit <= 0 || limit > r.cap {
		limit = r.cap
	}

	// Newest first
	result := make([]engine.ExecutionLogEntry, 0, limit)
	for i := len(log) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, log[i])
	}
	return result, nil
}

package activeregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

type stubWorkflowRepo struct {
	workflows map[kernel.WorkflowID]*engine.Workflow
}

func newStubWorkflowRepo() *stubWorkflowRepo {
	return &stubWorkflowRepo{workflows: map[kernel.WorkflowID]*engine.Workflow{}}
}

func (s *stubWorkflowRepo) Save(ctx context.Context, wf engine.Workflow) error {
	s.workflows[wf.ID] = &wf
	return nil
}

func (s *stubWorkflowRepo) FindByID(ctx context.Context, id kernel.WorkflowID) (*engine.Workflow, error) {
	wf, ok := s.workflows[id]
	if !ok {
		return nil, engine.ErrWorkflowNotFound().WithDetail("workflow_id", id.String())
	}
	copy := *wf
	return &copy, nil
}

func (s *stubWorkflowRepo) Delete(ctx context.Context, id kernel.WorkflowID) error {
	delete(s.workflows, id)
	return nil
}

func (s *stubWorkflowRepo) FindByOwner(ctx context.Context, ownerID kernel.UserID) ([]*engine.Workflow, error) {
	return nil, nil
}

func (s *stubWorkflowRepo) FindActive(ctx context.Context) ([]*engine.Workflow, error) {
	var active []*engine.Workflow
	for _, wf := range s.workflows {
		if wf.IsActive {
			active = append(active, wf)
		}
	}
	return active, nil
}

func (s *stubWorkflowRepo) List(ctx context.Context, req engine.WorkflowListRequest) (engine.WorkflowListResponse, error) {
	return engine.WorkflowListResponse{}, nil
}

func (s *stubWorkflowRepo) SetActive(ctx context.Context, id kernel.WorkflowID, isActive bool) error {
	if wf, ok := s.workflows[id]; ok {
		wf.IsActive = isActive
	}
	return nil
}

func sampleWorkflow(active bool) engine.Workflow {
	return engine.Workflow{
		ID:       kernel.NewWorkflowID(uuid.NewString()),
		Name:     "sample",
		IsActive: active,
		Nodes: []engine.Node{
			{ID: "trigger", Type: engine.NodeTypeChatTrigger, Label: "Chat Trigger"},
			{ID: "reply", Type: engine.NodeTypeChatResponse, Label: "Reply"},
		},
		Edges: []engine.Edge{{From: "trigger", To: "reply"}},
	}
}

func TestActivateAndRemove(t *testing.T) {
	registry := NewRegistry()
	wf := sampleWorkflow(true)

	registration := registry.Activate(wf, []string{"/api/chat/webhook/" + wf.ID.String()})
	assert.Equal(t, wf.ID, registration.WorkflowID)
	assert.True(t, registration.IsActive)
	assert.Len(t, registration.Nodes, 2)

	got, ok := registry.Get(wf.ID)
	require.True(t, ok)
	assert.Equal(t, wf.Name, got.Name)

	assert.True(t, registry.RemoveActiveWorkflow(wf.ID))
	assert.False(t, registry.RemoveActiveWorkflow(wf.ID))
	_, ok = registry.Get(wf.ID)
	assert.False(t, ok)
}

func TestSnapshotIsIndependentOfLaterEdits(t *testing.T) {
	registry := NewRegistry()
	wf := sampleWorkflow(true)
	registry.Activate(wf, nil)

	// Mutate the caller's copy after activation
	wf.Nodes = append(wf.Nodes, engine.Node{ID: "extra", Type: engine.NodeTypeHTTP})

	got, ok := registry.Get(wf.ID)
	require.True(t, ok)
	assert.Len(t, got.Nodes, 2)
}

func TestStats(t *testing.T) {
	registry := NewRegistry()
	stats := registry.GetWorkflowStats()
	assert.Zero(t, stats.ActiveCount)
	assert.True(t, stats.RestartedCold)

	registry.Activate(sampleWorkflow(true), nil)
	registry.Activate(sampleWorkflow(true), nil)

	stats = registry.GetWorkflowStats()
	assert.Equal(t, 2, stats.ActiveCount)
	assert.Equal(t, 4, stats.NodeCount)
	assert.Equal(t, 2, stats.TriggerCount)
	assert.Len(t, stats.WorkflowIDs, 2)
}

func TestDriftDetection(t *testing.T) {
	registry := NewRegistry()
	repo := newStubWorkflowRepo()
	detector := NewDriftDetector(registry, repo)
	ctx := context.Background()

	// Persisted active, not registered
	orphan := sampleWorkflow(true)
	require.NoError(t, repo.Save(ctx, orphan))

	report, err := detector.Check(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.DriftOnlyPersisted, report.Status)

	// Registered, persisted flag off
	ghost := sampleWorkflow(false)
	require.NoError(t, repo.Save(ctx, ghost))
	registry.Activate(ghost, nil)

	report, err = detector.Check(ctx, ghost.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.DriftOnlyRegistered, report.Status)

	// Both, graphs matching
	synced := sampleWorkflow(true)
	require.NoError(t, repo.Save(ctx, synced))
	registry.Activate(synced, nil)

	report, err = detector.Check(ctx, synced.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.DriftNone, report.Status)

	// Both, persisted graph edited after activation
	edited := sampleWorkflow(true)
	require.NoError(t, repo.Save(ctx, edited))
	registry.Activate(edited, nil)
	edited.Nodes = append(edited.Nodes, engine.Node{ID: "late", Type: engine.NodeTypeHTTP})
	require.NoError(t, repo.Save(ctx, edited))

	report, err = detector.Check(ctx, edited.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.DriftSnapshotOutdated, report.Status)
}

func TestReconcileReRegisters(t *testing.T) {
	registry := NewRegistry()
	repo := newStubWorkflowRepo()
	detector := NewDriftDetector(registry, repo)
	ctx := context.Background()

	wf := sampleWorkflow(true)
	require.NoError(t, repo.Save(ctx, wf))

	response, err := detector.Reconcile(ctx, wf.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.DriftOnlyPersisted, response.Before)
	assert.Equal(t, engine.DriftNone, response.After)

	_, ok := registry.Get(wf.ID)
	assert.True(t, ok)
}

func TestCheckAllCoversUnion(t *testing.T) {
	registry := NewRegistry()
	repo := newStubWorkflowRepo()
	detector := NewDriftDetector(registry, repo)
	ctx := context.Background()

	persistedOnly := sampleWorkflow(true)
	require.NoError(t, repo.Save(ctx, persistedOnly))

	registeredOnly := sampleWorkflow(false)
	require.NoError(t, repo.Save(ctx, registeredOnly))
	registry.Activate(registeredOnly, nil)

	reports, err := detector.CheckAll(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

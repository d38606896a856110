package engineapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Abraxas-365/craftable/errx/errxfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/engine/activeregistry"
	"github.com/flowbot-io/flowbot/engine/engineinfra"
	"github.com/flowbot-io/flowbot/engine/nodeexec"
	"github.com/flowbot-io/flowbot/engine/noderegistry"
	"github.com/flowbot-io/flowbot/engine/triggerhandler"
	"github.com/flowbot-io/flowbot/engine/workflowexec"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

type apiFixture struct {
	app      *fiber.App
	repo     *engineinfra.MemoryWorkflowRepository
	logs     *engineinfra.MemoryExecutionLogRepository
	registry *activeregistry.Registry
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	nodeRegistry := noderegistry.NewRegistry()
	nodeRegistry.MustRegister(noderegistry.NodeDescriptor{
		Type:     engine.NodeTypeWebhookTrigger,
		Executor: nodeexec.NewTriggerExecutor(),
	})
	nodeRegistry.MustRegister(noderegistry.NodeDescriptor{
		Type:     engine.NodeTypeChatTrigger,
		Executor: nodeexec.NewTriggerExecutor(),
	})

	repo := engineinfra.NewMemoryWorkflowRepository()
	logs := engineinfra.NewMemoryExecutionLogRepository(0)
	registry := activeregistry.NewRegistry()
	drift := activeregistry.NewDriftDetector(registry, repo)

	resolver := engine.NewTemplateResolver(engine.PolicyKeepLiteral)
	executor := workflowexec.NewGraphExecutor(nodeRegistry, resolver, logs, workflowexec.Options{})
	trigger := triggerhandler.NewTriggerHandler(registry, repo, executor)

	handler := NewWorkflowHandler(repo, logs, registry, nodeRegistry, drift, trigger, "http://localhost:8080")

	app := fiber.New(fiber.Config{ErrorHandler: errxfiber.FiberErrorHandler()})
	handler.RegisterRoutes(app)

	return &apiFixture{app: app, repo: repo, logs: logs, registry: registry}
}

func (f *apiFixture) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	_ = resp.Body.Close()
	return out
}

func createRequestBody(name string) engine.CreateWorkflowRequest {
	return engine.CreateWorkflowRequest{
		OwnerID: kernel.UserID("user-1"),
		Name:    name,
		Nodes: []engine.Node{
			{ID: "trigger-1", Type: engine.NodeTypeWebhookTrigger, Label: "Webhook"},
		},
	}
}

func TestCreateAndGetWorkflow(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, fiber.MethodPost, "/api/workflows/", createRequestBody("order intake"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	created := decodeBody[engine.WorkflowResponse](t, resp)
	assert.Equal(t, "order intake", created.Workflow.Name)
	assert.False(t, created.Workflow.IsActive)
	require.NotEmpty(t, created.Workflow.ID)

	resp = f.request(t, fiber.MethodGet, "/api/workflows/"+created.Workflow.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	fetched := decodeBody[engine.WorkflowResponse](t, resp)
	assert.Equal(t, created.Workflow.ID, fetched.Workflow.ID)
}

func TestGetWorkflowNotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, fiber.MethodGet, "/api/workflows/missing", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCreateWorkflowRejectsUnknownNodeType(t *testing.T) {
	f := newAPIFixture(t)

	body := createRequestBody("broken flow")
	body.Nodes = append(body.Nodes, engine.Node{ID: "x", Type: engine.NodeType("NOT_A_NODE")})

	resp := f.request(t, fiber.MethodPost, "/api/workflows/", body)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestListWorkflowsFiltersAndPaginates(t *testing.T) {
	f := newAPIFixture(t)

	for i := 0; i < 3; i++ {
		resp := f.request(t, fiber.MethodPost, "/api/workflows/", createRequestBody(fmt.Sprintf("flow-%d", i)))
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	resp := f.request(t, fiber.MethodGet, "/api/workflows/?page=1&page_size=2", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	page := decodeBody[engine.WorkflowListResponse](t, resp)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 3, page.Page.Total)

	resp = f.request(t, fiber.MethodGet, "/api/workflows/?search=flow-2", nil)
	page = decodeBody[engine.WorkflowListResponse](t, resp)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "flow-2", page.Data[0].Name)
}

func TestActivateRegistersWorkflow(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody[engine.WorkflowResponse](t,
		f.request(t, fiber.MethodPost, "/api/workflows/", createRequestBody("order intake")))
	id := created.Workflow.ID

	resp := f.request(t, fiber.MethodPost, "/api/workflows/"+id.String()+"/activate", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	activated := decodeBody[engine.ActivateWorkflowResponse](t, resp)
	assert.True(t, activated.IsActive)
	require.Len(t, activated.TriggerURLs, 1)
	assert.Equal(t, "http://localhost:8080/api/trigger/"+id.String(), activated.TriggerURLs[0])

	_, registered := f.registry.Get(id)
	assert.True(t, registered)

	resp = f.request(t, fiber.MethodPost, "/api/workflows/"+id.String()+"/deactivate", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	_, registered = f.registry.Get(id)
	assert.False(t, registered)
}

func TestWebhookTriggerRequiresActivation(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody[engine.WorkflowResponse](t,
		f.request(t, fiber.MethodPost, "/api/workflows/", createRequestBody("order intake")))
	id := created.Workflow.ID

	// Not activated yet: events are rejected
	resp := f.request(t, fiber.MethodPost, "/api/trigger/"+id.String(), map[string]any{"order_id": "A-1"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	f.request(t, fiber.MethodPost, "/api/workflows/"+id.String()+"/activate", nil)

	resp = f.request(t, fiber.MethodPost, "/api/trigger/"+id.String(), map[string]any{"order_id": "A-1"})
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
}

func TestExecuteWorkflowSynchronously(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody[engine.WorkflowResponse](t,
		f.request(t, fiber.MethodPost, "/api/workflows/", createRequestBody("order intake")))
	id := created.Workflow.ID

	resp := f.request(t, fiber.MethodPost, "/api/workflows/"+id.String()+"/execute",
		engine.ExecuteWorkflowRequest{TriggerData: map[string]any{"order_id": "A-1"}})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	result := decodeBody[engine.WorkflowExecutionResponse](t, resp)
	assert.Equal(t, engine.RunStatusCompleted, result.Status)
	assert.True(t, result.Success)
	assert.Equal(t, id, result.WorkflowID)
	require.Len(t, result.Nodes, 1)

	// The run landed in the execution log
	logResp := f.request(t, fiber.MethodGet, "/api/workflows/"+id.String()+"/executions", nil)
	require.Equal(t, fiber.StatusOK, logResp.StatusCode)

	logs := decodeBody[engine.ExecutionLogResponse](t, logResp)
	require.Len(t, logs.Entries, 1)
	assert.Equal(t, result.RunID, logs.Entries[0].RunID)
}

func TestValidateWorkflowEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, fiber.MethodPost, "/api/workflows/validate", engine.ValidateWorkflowRequest{
		Nodes: []engine.Node{{ID: "t", Type: engine.NodeTypeWebhookTrigger}},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	valid := decodeBody[engine.ValidateWorkflowResponse](t, resp)
	assert.True(t, valid.IsValid)

	resp = f.request(t, fiber.MethodPost, "/api/workflows/validate", engine.ValidateWorkflowRequest{
		Nodes: []engine.Node{{ID: "x", Type: engine.NodeType("NOT_A_NODE")}},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	invalid := decodeBody[engine.ValidateWorkflowResponse](t, resp)
	assert.False(t, invalid.IsValid)
	assert.NotEmpty(t, invalid.Errors)
}

func TestNodeCatalogEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, fiber.MethodGet, "/api/nodes", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody[map[string][]noderegistry.NodeDescriptor](t, resp)
	require.Len(t, body["nodes"], 2)
}

func TestDebugSurfacesDrift(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody[engine.WorkflowResponse](t,
		f.request(t, fiber.MethodPost, "/api/workflows/", createRequestBody("order intake")))
	id := created.Workflow.ID

	f.request(t, fiber.MethodPost, "/api/workflows/"+id.String()+"/activate", nil)

	// Edit after activation: persisted graph and snapshot now differ
	newLabel := "renamed"
	update := engine.UpdateWorkflowRequest{
		Nodes: &[]engine.Node{
			{ID: "trigger-1", Type: engine.NodeTypeWebhookTrigger, Label: newLabel},
		},
	}
	resp := f.request(t, fiber.MethodPut, "/api/workflows/"+id.String(), update)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = f.request(t, fiber.MethodGet, "/api/debug/workflow/"+id.String(), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	debug := decodeBody[engine.DebugWorkflowResponse](t, resp)
	assert.Equal(t, engine.DriftSnapshotOutdated, debug.Drift.Status)

	// Reconcile re-registers from storage
	resp = f.request(t, fiber.MethodPost, "/api/debug/workflow/"+id.String()+"/reconcile", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	reconciled := decodeBody[engine.ReconcileResponse](t, resp)
	assert.Equal(t, engine.DriftSnapshotOutdated, reconciled.Before)
	assert.Equal(t, engine.DriftNone, reconciled.After)

	registration, ok := f.registry.Get(id)
	require.True(t, ok)
	require.Len(t, registration.Nodes, 1)
	assert.Equal(t, "renamed", registration.Nodes[0].Label)
}

func TestDebugWorkflowsStats(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody[engine.WorkflowResponse](t,
		f.request(t, fiber.MethodPost, "/api/workflows/", createRequestBody("order intake")))
	f.request(t, fiber.MethodPost, "/api/workflows/"+created.Workflow.ID.String()+"/activate", nil)

	resp := f.request(t, fiber.MethodGet, "/api/debug/workflows", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	debug := decodeBody[engine.DebugWorkflowsResponse](t, resp)
	assert.Equal(t, 1, debug.Stats.ActiveCount)
	require.Len(t, debug.Workflows, 1)
	assert.Equal(t, created.Workflow.ID, debug.Workflows[0].WorkflowID)
}

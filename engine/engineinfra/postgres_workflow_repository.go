package engineinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/logx"
	"github.com/Abraxas-365/craftable/storex"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

type PostgresWorkflowRepository struct {
	db *sqlx.DB
}

var _ engine.WorkflowRepository = (*PostgresWorkflowRepository)(nil)

func NewPostgresWorkflowRepository(db *sqlx.DB) *PostgresWorkflowRepository {
	return &PostgresWorkflowRepository{db: db}
}

// dbWorkflow is an intermediate struct for database operations
type dbWorkflow struct {
	ID          string          `db:"id"`
	OwnerID     string          `db:"owner_id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Nodes       json.RawMessage `db:"nodes"`
	Edges       json.RawMessage `db:"edges"`
	IsActive    bool            `db:"is_active"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func toDBWorkflow(wf engine.Workflow) (*dbWorkflow, error) {
	nodesJSON := []byte("[]")
	if len(wf.Nodes) > 0 {
		var err error
		nodesJSON, err = json.Marshal(wf.Nodes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal nodes: %w", err)
		}
	}

	edgesJSON := []byte("[]")
	if len(wf.Edges) > 0 {
		var err error
		edgesJSON, err = json.Marshal(wf.Edges)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal edges: %w", err)
		}
	}

	return &dbWorkflow{
		ID:          wf.ID.String(),
		OwnerID:     wf.OwnerID.String(),
		Name:        wf.Name,
		Description: wf.Description,
		Nodes:       nodesJSON,
		Edges:       edgesJSON,
		IsActive:    wf.IsActive,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}, nil
}

func toDomainWorkflow(dbWf *dbWorkflow) (*engine.Workflow, error) {
	var nodes []engine.Node
	if len(dbWf.Nodes) > 0 && string(dbWf.Nodes) != "null" {
		if err := json.Unmarshal(dbWf.Nodes, &nodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
		}
	}

	var edges []engine.Edge
	if len(dbWf.Edges) > 0 && string(dbWf.Edges) != "null" {
		if err := json.Unmarshal(dbWf.Edges, &edges); err != nil {
			return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
		}
	}

	return &engine.Workflow{
		ID:          kernel.WorkflowID(dbWf.ID),
		OwnerID:     kernel.UserID(dbWf.OwnerID),
		Name:        dbWf.Name,
		Description: dbWf.Description,
		Nodes:       nodes,
		Edges:       edges,
		IsActive:    dbWf.IsActive,
		CreatedAt:   dbWf.CreatedAt,
		UpdatedAt:   dbWf.UpdatedAt,
	}, nil
}

func (r *PostgresWorkflowRepository) Save(ctx context.Context, wf engine.Workflow) error {
	exists, err := r.workflowExists(ctx, wf.ID)
	if err != nil {
		return errx.Wrap(err, "failed to check workflow existence", errx.TypeInternal)
	}

	if exists {
		return r.update(ctx, wf)
	}
	return r.create(ctx, wf)
}

func (r *PostgresWorkflowRepository) create(ctx context.Context, wf engine.Workflow) error {
	dbWf, err := toDBWorkflow(wf)
	if err != nil {
		return errx.Wrap(err, "failed to convert workflow", errx.TypeInternal).
			WithDetail("workflow_id", wf.ID.String())
	}

	query := `
		INSERT INTO workflows (
			id, owner_id, name, description, nodes, edges,
			is_active, created_at, updated_at
		) VALUES (
			:id, :owner_id, :name, :description, :nodes, :edges,
			:is_active, :created_at, :updated_at
		)`

	_, err = r.db.NamedExecContext(ctx, query, dbWf)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" && pqErr.Constraint == "workflows_name_owner_id_key" {
				return engine.ErrWorkflowAlreadyExists().
					WithDetail("name", wf.Name).
					WithDetail("owner_id", wf.OwnerID.String())
			}
		}
		return errx.Wrap(err, "failed to create workflow", errx.TypeInternal).
			WithDetail("workflow_id", wf.ID.String())
	}

	return nil
}

func (r *PostgresWorkflowRepository) update(ctx context.Context, wf engine.Workflow) error {
	dbWf, err := toDBWorkflow(wf)
	if err != nil {
		return errx.Wrap(err, "failed to convert workflow", errx.TypeInternal).
			WithDetail("workflow_id", wf.ID.String())
	}

	query := `
		UPDATE workflows SET
			name = :name,
			description = :description,
			nodes = :nodes,
			edges = :edges,
			is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, dbWf)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" {
				return engine.ErrWorkflowAlreadyExists().WithDetail("name", wf.Name)
			}
		}
		return errx.Wrap(err, "failed to update workflow", errx.TypeInternal).
			WithDetail("workflow_id", wf.ID.String())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrWorkflowNotFound().WithDetail("workflow_id", wf.ID.String())
	}

	return nil
}

func (r *PostgresWorkflowRepository) FindByID(ctx context.Context, id kernel.WorkflowID) (*engine.Workflow, error) {
	query := `
		SELECT
			id, owner_id, name, description, nodes, edges,
			is_active, created_at, updated_at
		FROM workflows
		WHERE id = $1`

	var dbWf dbWorkflow
	err := r.db.GetContext(ctx, &dbWf, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrWorkflowNotFound().WithDetail("workflow_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find workflow by id", errx.TypeInternal).
			WithDetail("workflow_id", id.String())
	}

	return toDomainWorkflow(&dbWf)
}

func (r *PostgresWorkflowRepository) Delete(ctx context.Context, id kernel.WorkflowID) error {
	query := `DELETE FROM workflows WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete workflow", errx.TypeInternal).
			WithDetail("workflow_id", id.String())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrWorkflowNotFound().WithDetail("workflow_id", id.String())
	}

	return nil
}

func (r *PostgresWorkflowRepository) FindByOwner(ctx context.Context, ownerID kernel.UserID) ([]*engine.Workflow, error) {
	query := `
		SELECT
			id, owner_id, name, description, nodes, edges,
			is_active, created_at, updated_at
		FROM workflows
		WHERE owner_id = $1
		ORDER BY name ASC`

	var dbWorkflows []dbWorkflow
	err := r.db.SelectContext(ctx, &dbWorkflows, query, ownerID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to find workflows by owner", errx.TypeInternal).
			WithDetail("owner_id", ownerID.String())
	}

	return toDomainWorkflows(dbWorkflows)
}

func (r *PostgresWorkflowRepository) FindActive(ctx context.Context) ([]*engine.Workflow, error) {
	query := `
		SELECT
			id, owner_id, name, description, nodes, edges,
			is_active, created_at, updated_at
		FROM workflows
		WHERE is_active = true
		ORDER BY name ASC`

	var dbWorkflows []dbWorkflow
	err := r.db.SelectContext(ctx, &dbWorkflows, query)
	if err != nil {
		return nil, errx.Wrap(err, "failed to find active workflows", errx.TypeInternal)
	}

	return toDomainWorkflows(dbWorkflows)
}

func (r *PostgresWorkflowRepository) List(ctx context.Context, req engine.WorkflowListRequest) (engine.WorkflowListResponse, error) {
	var conditions []string
	var args []any
	argPos := 1

	if req.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argPos))
		args = append(args, req.OwnerID.String())
		argPos++
	}

	if req.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argPos))
		args = append(args, *req.IsActive)
		argPos++
	}

	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argPos, argPos+1))
		searchPattern := "%" + req.Search + "%"
		args = append(args, searchPattern, searchPattern)
		argPos += 2
	}

	whereClause := "TRUE"
	if len(conditions) > 0 {
		whereClause = strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM workflows WHERE %s", whereClause)
	var total int
	err := r.db.GetContext(ctx, &total, countQuery, args...)
	if err != nil {
		return engine.WorkflowListResponse{}, errx.Wrap(err, "failed to count workflows", errx.TypeInternal)
	}

	dataQuery := fmt.Sprintf(`
		SELECT
			id, owner_id, name, description, nodes, edges,
			is_active, created_at, updated_at
		FROM workflows
		WHERE %s
		ORDER BY name ASC
		LIMIT $%d OFFSET $%d`,
		whereClause, argPos, argPos+1)

	args = append(args, req.PageSize, req.GetOffset())

	var dbWorkflows []dbWorkflow
	err = r.db.SelectContext(ctx, &dbWorkflows, dataQuery, args...)
	if err != nil {
		return engine.WorkflowListResponse{}, errx.Wrap(err, "failed to list workflows", errx.TypeInternal)
	}

	workflows := make([]engine.Workflow, 0, len(dbWorkflows))
	for i := range dbWorkflows {
		wf, err := toDomainWorkflow(&dbWorkflows[i])
		if err != nil {
			return engine.WorkflowListResponse{}, errx.Wrap(err, "failed to convert workflow", errx.TypeInternal)
		}
		workflows = append(workflows, *wf)
	}

	return storex.NewPaginated(workflows, req.Page, req.PageSize, total), nil
}

func (r *PostgresWorkflowRepository) SetActive(ctx context.Context, id kernel.WorkflowID, isActive bool) error {
	query := `
		UPDATE workflows
		SET is_active = $1, updated_at = NOW()
		WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, isActive, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to update workflow active flag", errx.TypeInternal).
			WithDetail("workflow_id", id.String())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrWorkflowNotFound().WithDetail("workflow_id", id.String())
	}

	return nil
}

func (r *PostgresWorkflowRepository) workflowExists(ctx context.Context, id kernel.WorkflowID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM workflows WHERE id = $1)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, id.String())
	if err != nil {
		return false, errx.Wrap(err, "failed to check workflow existence", errx.TypeInternal)
	}

	return exists, nil
}

func toDomainWorkflows(dbWorkflows []dbWorkflow) ([]*engine.Workflow, error) {
	result := make([]*engine.Workflow, 0, len(dbWorkflows))
	for i := range dbWorkflows {
		wf, err := toDomainWorkflow(&dbWorkflows[i])
		if err != nil {
			logx.Error("Error converting workflow row %s: %v", dbWorkflows[i].ID, err)
			return nil, errx.Wrap(err, "failed to convert workflow", errx.TypeInternal)
		}
		result = append(result, wf)
	}
	return result, nil
}

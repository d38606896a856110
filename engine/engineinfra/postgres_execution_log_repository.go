package engineinfra

import (
	"context"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/jmoiron/sqlx"

	"github.com/flowbot-io/flowbot/engine"
	"github.com/flowbot-io/flowbot/pkg/kernel"
)

// defaultLogEntriesPerWorkflow bounds the per-workflow run history
// when no cap is configured. Older entries are trimmed on append so
// the table never grows past the cap.
const defaultLogEntriesPerWorkflow = 50

type PostgresExecutionLogRepository struct {
	db  *sqlx.DB
	cap int
}

var _ engine.ExecutionLogRepository = (*PostgresExecutionLogRepository)(nil)

// NewPostgresExecutionLogRepository keeps at most logCap entries per
// workflow; logCap <= 0 falls back to the default.
func NewPostgresExecutionLogRepository(db *sqlx.DB, logCap int) *PostgresExecutionLogRepository {
	if logCap <= 0 {
		logCap = defaultLogEntriesPerWorkflow
	}
	return &PostgresExecutionLogRepository{db: db, cap: logCap}
}

func (r *PostgresExecutionLogRepository) Append(ctx context.Context, entry engine.ExecutionLogEntry) error {
	insertQuery := `
		INSERT INTO execution_logs (
			run_id, workflow_id, status, message, duration_ms, created_at
		) VALUES (
			:run_id, :workflow_id, :status, :message, :duration_ms, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, insertQuery, entry)
	if err != nil {
		return errx.Wrap(err, "failed to append execution log", errx.TypeInternal).
			WithDetail("workflow_id", entry.WorkflowID.String()).
			WithDetail("run_id", entry.RunID.String())
	}

	// Trim everything past the newest N for this workflow
	trimQuery := `
		DELETE FROM execution_logs
		WHERE workflow_id = $1
			AND run_id NOT IN (
				SELECT run_id FROM execution_logs
				WHERE workflow_id = $1
				ORDER BY created_at DESC
				LIMIT $2
			)`

	_, err = r.db.ExecContext(ctx, trimQuery, entry.WorkflowID.String(), r.cap)
	if err != nil {
		return errx.Wrap(err, "failed to trim execution log", errx.TypeInternal).
			WithDetail("workflow_id", entry.WorkflowID.String())
	}

	return nil
}

func (r *PostgresExecutionLogRepository) Recent(ctx context.Context, workflowID kernel.WorkflowID, limit int) ([]engine.ExecutionLogEntry, error) {
	if limit <= 0 || limit > r.cap {
		limit = r.cap
	}

	query := `
		SELECT run_id, workflow_id, status, message, duration_ms, created_at
		FROM execution_logs
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	var entries []engine.ExecutionLogEntry
	err := r.db.SelectContext(ctx, &entries, query, workflowID.String(), limit)
	if err != nil {
		return nil, errx.Wrap(err, "failed to fetch execution log", errx.TypeInternal).
			WithDetail("workflow_id", workflowID.String())
	}

	return entries, nil
}

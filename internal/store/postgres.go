/*-------------------------------------------------------------------------
 *
 * postgres.go
 *    PostgreSQL execution store
 *
 * Durable execution store persisting full execution snapshots as
 * JSONB, keyed by execution id with workflow and status columns for
 * listing. Upserts keep the row current as the scheduler checkpoints.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/store/postgres.go
 *
 *-------------------------------------------------------------------------
 */

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/neurondb/NeuronFlow/internal/workflow"
)

const (
	saveExecutionQuery = `
		INSERT INTO neuronflow.workflow_executions
		(id, workflow_id, status, snapshot, started_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    snapshot = EXCLUDED.snapshot,
		    completed_at = EXCLUDED.completed_at,
		    updated_at = NOW()`

	getExecutionQuery = `
		SELECT snapshot FROM neuronflow.workflow_executions WHERE id = $1`

	listExecutionsQuery = `
		SELECT snapshot FROM neuronflow.workflow_executions
		WHERE ($1::text = '' OR workflow_id = $1)
		ORDER BY started_at DESC
		LIMIT $2`

	createSchemaQuery = `
		CREATE SCHEMA IF NOT EXISTS neuronflow;

		CREATE TABLE IF NOT EXISTS neuronflow.workflow_executions (
			id UUID PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			snapshot JSONB NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS workflow_executions_workflow_idx
			ON neuronflow.workflow_executions (workflow_id, started_at DESC);

		CREATE TABLE IF NOT EXISTS neuronflow.events (
			id UUID PRIMARY KEY,
			type TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			source TEXT NOT NULL,
			data JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS events_type_idx
			ON neuronflow.events (type, timestamp DESC);`
)

/* PostgresExecutionStore is the durable execution store */
type PostgresExecutionStore struct {
	db *sqlx.DB
}

/* Connect opens a database connection pool */
func Connect(connStr string, maxConns int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: error=%w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

/* NewPostgresExecutionStore creates a store over an open connection */
func NewPostgresExecutionStore(db *sqlx.DB) *PostgresExecutionStore {
	return &PostgresExecutionStore{db: db}
}

/* Migrate creates the schema and tables if they do not exist */
func (s *PostgresExecutionStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSchemaQuery); err != nil {
		return fmt.Errorf("schema migration failed: error=%w", err)
	}
	return nil
}

/* SaveExecution upserts an execution snapshot */
func (s *PostgresExecutionStore) SaveExecution(ctx context.Context, execution *workflow.WorkflowExecution) error {
	if execution == nil {
		return fmt.Errorf("execution is required")
	}

	snapshot, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("execution serialization failed: execution_id='%s', error=%w", execution.ID, err)
	}

	var completedAt sql.NullTime
	if execution.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *execution.CompletedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, saveExecutionQuery,
		execution.ID,
		execution.WorkflowID,
		string(execution.Status),
		snapshot,
		execution.StartedAt,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("execution persist failed: execution_id='%s', error=%w", execution.ID, err)
	}
	return nil
}

/* GetExecution loads one execution snapshot */
func (s *PostgresExecutionStore) GetExecution(ctx context.Context, executionID uuid.UUID) (*workflow.WorkflowExecution, error) {
	var snapshot []byte
	err := s.db.GetContext(ctx, &snapshot, getExecutionQuery, executionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution lookup failed: execution_id='%s', error=%w", executionID, workflow.ErrExecutionNotFound)
		}
		return nil, fmt.Errorf("execution lookup failed: execution_id='%s', error=%w", executionID, err)
	}

	var execution workflow.WorkflowExecution
	if err := json.Unmarshal(snapshot, &execution); err != nil {
		return nil, fmt.Errorf("execution deserialization failed: execution_id='%s', error=%w", executionID, err)
	}
	return &execution, nil
}

/* ListExecutions loads recent snapshots for a workflow, newest first.
 * An empty workflowID matches all executions. */
func (s *PostgresExecutionStore) ListExecutions(ctx context.Context, workflowID string, limit int) ([]*workflow.WorkflowExecution, error) {
	if limit <= 0 {
		limit = 100
	}

	var snapshots [][]byte
	err := s.db.SelectContext(ctx, &snapshots, listExecutionsQuery, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("execution list failed: workflow_id='%s', error=%w", workflowID, err)
	}

	executions := make([]*workflow.WorkflowExecution, 0, len(snapshots))
	for _, snapshot := range snapshots {
		var execution workflow.WorkflowExecution
		if err := json.Unmarshal(snapshot, &execution); err != nil {
			return nil, fmt.Errorf("execution deserialization failed: workflow_id='%s', error=%w", workflowID, err)
		}
		executions = append(executions, &execution)
	}
	return executions, nil
}

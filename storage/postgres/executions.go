package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vultisig/trigger-plugin/internal/types"
	"github.com/vultisig/trigger-plugin/storage"
)

const insertExecution = `
	INSERT INTO order_executions (order_id, slot, tx_hash, status, metadata)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`

func (p *PostgresBackend) createExecutionTx(ctx context.Context, dbTx pgx.Tx, exec types.ExecutionRecord) (uuid.UUID, error) {
	metadata, err := json.Marshal(exec.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	var id uuid.UUID
	err = dbTx.QueryRow(ctx, insertExecution, exec.OrderID, exec.Slot, exec.TxHash, exec.Status, metadata).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert execution: %w", err)
	}
	return id, nil
}

func (p *PostgresBackend) RecordExecution(ctx context.Context, exec types.ExecutionRecord, state types.TriggerState, status types.OrderStatus) (uuid.UUID, error) {
	dbTx, err := p.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := dbTx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			p.logger.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	id, err := p.createExecutionTx(ctx, dbTx, exec)
	if err != nil {
		return uuid.Nil, err
	}
	if err := p.updateOrderStateTx(ctx, dbTx, exec.OrderID, state, status); err != nil {
		return uuid.Nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

func (p *PostgresBackend) CreateExecution(ctx context.Context, exec types.ExecutionRecord) (uuid.UUID, error) {
	metadata, err := json.Marshal(exec.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	var id uuid.UUID
	err = p.pool.QueryRow(ctx, insertExecution, exec.OrderID, exec.Slot, exec.TxHash, exec.Status, metadata).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert execution: %w", err)
	}
	return id, nil
}

func scanExecution(row pgx.Row) (*types.ExecutionRecord, error) {
	var exec types.ExecutionRecord
	var txHash *string
	var metadata []byte
	if err := row.Scan(&exec.ID, &exec.OrderID, &exec.Slot, &txHash, &exec.Status, &metadata, &exec.CreatedAt); err != nil {
		return nil, err
	}
	if txHash != nil {
		exec.TxHash = *txHash
	}
	if err := json.Unmarshal(metadata, &exec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &exec, nil
}

const executionColumns = `id, order_id, slot, tx_hash, status, metadata, created_at`

func (p *PostgresBackend) GetExecutions(ctx context.Context, orderID uuid.UUID, take int, skip int) ([]types.ExecutionRecord, error) {
	rows, err := p.pool.Query(ctx, `
	SELECT `+executionColumns+` FROM order_executions
	WHERE order_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`, orderID, take, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to get executions: %w", err)
	}
	defer rows.Close()

	var executions []types.ExecutionRecord
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *exec)
	}
	return executions, rows.Err()
}

// GetExecutionBySlot returns the submitted execution of a slot, if any.
func (p *PostgresBackend) GetExecutionBySlot(ctx context.Context, orderID uuid.UUID, slot int64) (*types.ExecutionRecord, error) {
	exec, err := scanExecution(p.pool.QueryRow(ctx, `
	SELECT `+executionColumns+` FROM order_executions
	WHERE order_id = $1 AND slot = $2 AND status = 'SUBMITTED'`, orderID, slot))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return exec, nil
}

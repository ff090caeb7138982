package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vultisig/trigger-plugin/common"
	"github.com/vultisig/trigger-plugin/internal/types"
	"github.com/vultisig/trigger-plugin/storage"
)

const orderColumns = `id, spec, status, executions_remaining, next_execution_time, completed, created_at, updated_at`

func scanOrder(row pgx.Row) (*types.OrderRecord, error) {
	var order types.OrderRecord
	var specJSON []byte
	err := row.Scan(
		&order.ID,
		&specJSON,
		&order.Status,
		&order.State.ExecutionsRemaining,
		&order.State.NextExecutionTime,
		&order.State.Completed,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(specJSON, &order.Spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order spec: %w", err)
	}
	return &order, nil
}

func (p *PostgresBackend) InsertOrder(ctx context.Context, order types.OrderRecord) (*types.OrderRecord, error) {
	specJSON, err := json.Marshal(order.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order spec: %w", err)
	}

	query := `
	INSERT INTO orders (
		id, order_type, wallet_address, network, spec, status,
		executions_remaining, next_execution_time, expiration_time, completed
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING ` + orderColumns

	inserted, err := scanOrder(p.pool.QueryRow(ctx, query,
		order.ID,
		order.Spec.Type,
		order.Spec.WalletAddress,
		order.Spec.Network,
		specJSON,
		order.Status,
		order.State.ExecutionsRemaining,
		order.State.NextExecutionTime,
		order.Spec.ExpirationTime,
		order.State.Completed,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}
	return inserted, nil
}

func (p *PostgresBackend) GetOrder(ctx context.Context, id uuid.UUID) (*types.OrderRecord, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database pool is nil")
	}

	order, err := scanOrder(p.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (p *PostgresBackend) GetOrdersByWallet(ctx context.Context, wallet string, sort string, take int, skip int) ([]types.OrderRecord, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database pool is nil")
	}

	orderBy, direction := common.GetSortingCondition(sort)
	query := fmt.Sprintf(`
	SELECT %s FROM orders
	WHERE LOWER(wallet_address) = LOWER($1)
	ORDER BY %s %s
	LIMIT $2 OFFSET $3`, orderColumns, orderBy, direction)

	rows, err := p.pool.Query(ctx, query, wallet, take, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return collectOrders(rows)
}

// GetDueOrders returns active recurring orders whose slot has arrived and
// every active, unexpired single fire order.
func (p *PostgresBackend) GetDueOrders(ctx context.Context, now time.Time) ([]types.OrderRecord, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database pool is nil")
	}

	query := `
	SELECT ` + orderColumns + ` FROM orders
	WHERE status = 'ACTIVE' AND completed = FALSE
	AND (
		(order_type = 'DCA' AND next_execution_time <= $1)
		OR (order_type = 'LIMIT' AND expiration_time > $1)
	)
	ORDER BY next_execution_time ASC`

	rows, err := p.pool.Query(ctx, query, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to get due orders: %w", err)
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]types.OrderRecord, error) {
	defer rows.Close()
	var orders []types.OrderRecord
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

const updateOrderState = `
	UPDATE orders
	SET executions_remaining = $2,
		next_execution_time = $3,
		completed = $4,
		status = $5,
		updated_at = NOW()
	WHERE id = $1`

func (p *PostgresBackend) updateOrderStateTx(ctx context.Context, dbTx pgx.Tx, id uuid.UUID, state types.TriggerState, status types.OrderStatus) error {
	tag, err := dbTx.Exec(ctx, updateOrderState, id, state.ExecutionsRemaining, state.NextExecutionTime, state.Completed, status)
	if err != nil {
		return fmt.Errorf("failed to update order state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (p *PostgresBackend) UpdateOrderState(ctx context.Context, id uuid.UUID, state types.TriggerState, status types.OrderStatus) error {
	tag, err := p.pool.Exec(ctx, updateOrderState, id, state.ExecutionsRemaining, state.NextExecutionTime, state.Completed, status)
	if err != nil {
		return fmt.Errorf("failed to update order state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (p *PostgresBackend) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status types.OrderStatus) error {
	tag, err := p.pool.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (p *PostgresBackend) ExpireLimitOrders(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := p.pool.Query(ctx, `
	UPDATE orders SET status = 'EXPIRED', updated_at = NOW()
	WHERE status = 'ACTIVE' AND order_type = 'LIMIT' AND expiration_time <= $1
	RETURNING id`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to expire orders: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to collect expired orders: %w", err)
	}
	return ids, nil
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vultisig/trigger-plugin/internal/types"
)

var ErrNotFound = errors.New("not found")

type DatabaseStorage interface {
	Close() error

	InsertOrder(ctx context.Context, order types.OrderRecord) (*types.OrderRecord, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*types.OrderRecord, error)
	GetOrdersByWallet(ctx context.Context, wallet string, sort string, take int, skip int) ([]types.OrderRecord, error)
	GetDueOrders(ctx context.Context, now time.Time) ([]types.OrderRecord, error)
	UpdateOrderState(ctx context.Context, id uuid.UUID, state types.TriggerState, status types.OrderStatus) error
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status types.OrderStatus) error
	ExpireLimitOrders(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	// RecordExecution stores a submitted execution and the order's next
	// trigger state in one transaction.
	RecordExecution(ctx context.Context, exec types.ExecutionRecord, state types.TriggerState, status types.OrderStatus) (uuid.UUID, error)
	CreateExecution(ctx context.Context, exec types.ExecutionRecord) (uuid.UUID, error)
	GetExecutions(ctx context.Context, orderID uuid.UUID, take int, skip int) ([]types.ExecutionRecord, error)
	GetExecutionBySlot(ctx context.Context, orderID uuid.UUID, slot int64) (*types.ExecutionRecord, error)

	Pool() *pgxpool.Pool
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/internal/types"
	"github.com/vultisig/trigger-plugin/plugin"
	"github.com/vultisig/trigger-plugin/storage"
)

var ErrOrderNotActive = errors.New("order is not active")

const defaultHistoryTake = 30

type OrderStore interface {
	CreateOrder(ctx context.Context, spec types.OrderSpec) (*types.OrderRecord, error)
	GetOrder(ctx context.Context, orderID string) (*types.OrderRecord, error)
	GetOrdersByWallet(ctx context.Context, wallet, sort string, take, skip int) ([]types.OrderRecord, error)
	CancelOrder(ctx context.Context, orderID string) (*types.OrderRecord, error)
	GetOrderExecutions(ctx context.Context, orderID string, take, skip int) ([]types.ExecutionRecord, error)
}

var _ OrderStore = (*OrderService)(nil)

// OrderService persists registered orders for the scheduler to trigger.
type OrderService struct {
	db     storage.DatabaseStorage
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewOrderService(db storage.DatabaseStorage, logger logrus.FieldLogger) (*OrderService, error) {
	if db == nil {
		return nil, fmt.Errorf("database storage cannot be nil")
	}
	return &OrderService{
		db:     db,
		logger: logger,
		now:    time.Now,
	}, nil
}

func parseOrderID(orderID string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(orderID))
	if err != nil {
		return uuid.Nil, types.NewValidationError("invalid orderId: %s", orderID)
	}
	return id, nil
}

func (s *OrderService) CreateOrder(ctx context.Context, spec types.OrderSpec) (*types.OrderRecord, error) {
	trigger, err := plugin.ValidateNewOrder(spec, s.now())
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	if spec.OrderID != "" {
		if id, err = parseOrderID(spec.OrderID); err != nil {
			return nil, err
		}
	}
	spec = spec.WithDefaults()
	spec.OrderID = id.String()

	order, err := s.db.InsertOrder(ctx, types.OrderRecord{
		ID:     id,
		Spec:   spec,
		State:  trigger.InitialState(),
		Status: types.OrderStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"order_type": spec.Type,
		"wallet":     spec.WalletAddress,
	}).Info("order created")
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*types.OrderRecord, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	order, err := s.db.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (s *OrderService) GetOrdersByWallet(ctx context.Context, wallet, sort string, take, skip int) ([]types.OrderRecord, error) {
	if wallet == "" {
		return nil, types.NewValidationError("wallet is required")
	}
	if take <= 0 {
		take = defaultHistoryTake
	}
	if skip < 0 {
		skip = 0
	}
	orders, err := s.db.GetOrdersByWallet(ctx, wallet, sort, take, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*types.OrderRecord, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != types.OrderStatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrOrderNotActive, order.Status)
	}
	if err := s.db.UpdateOrderStatus(ctx, order.ID, types.OrderStatusCancelled); err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	order.Status = types.OrderStatusCancelled
	s.logger.WithField("order_id", order.ID).Info("order cancelled")
	return order, nil
}

func (s *OrderService) GetOrderExecutions(ctx context.Context, orderID string, take, skip int) ([]types.ExecutionRecord, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if take <= 0 {
		take = defaultHistoryTake
	}
	if skip < 0 {
		skip = 0
	}
	executions, err := s.db.GetExecutions(ctx, id, take, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to get order executions: %w", err)
	}
	return executions, nil
}

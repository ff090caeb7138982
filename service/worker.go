package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/internal/tasks"
	"github.com/vultisig/trigger-plugin/internal/types"
	"github.com/vultisig/trigger-plugin/plugin"
	"github.com/vultisig/trigger-plugin/storage"
)

// Metrics is the part of the statsd client the services report through.
type Metrics interface {
	Count(name string, value int64, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
}

// Locker holds the per slot lock and the broadcast marker written right
// after a swap is sent.
type Locker interface {
	SetNX(ctx context.Context, key string, value string, expiry time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiry time.Duration) error
	Delete(ctx context.Context, key string) error
}

type ReceiptStore interface {
	Store(ctx context.Context, r storage.Receipt) (string, error)
}

const (
	defaultLockTTL = 5 * time.Minute
	broadcastTTL   = 7 * 24 * time.Hour
)

type WorkerService struct {
	db       storage.DatabaseStorage
	engine   Orders
	locker   Locker
	archive  ReceiptStore
	sdClient Metrics
	lockTTL  time.Duration
	logger   logrus.FieldLogger
}

// NewWorker creates the trigger worker. archive may be nil.
func NewWorker(db storage.DatabaseStorage, engine Orders, locker Locker, archive ReceiptStore, sdClient Metrics, lockTTL time.Duration, logger logrus.FieldLogger) (*WorkerService, error) {
	if db == nil || engine == nil || locker == nil || sdClient == nil {
		return nil, fmt.Errorf("database, engine, locker and metrics client are required")
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &WorkerService{
		db:       db,
		engine:   engine,
		locker:   locker,
		archive:  archive,
		sdClient: sdClient,
		lockTTL:  lockTTL,
		logger:   logger.WithField("service", "worker"),
	}, nil
}

func (s *WorkerService) incCounter(name string, tags []string) {
	if err := s.sdClient.Count(name, 1, tags, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func (s *WorkerService) measureTime(name string, start time.Time, tags []string) {
	if err := s.sdClient.Timing(name, time.Since(start), tags, 1); err != nil {
		s.logger.Errorf("fail to measure time metric, err: %v", err)
	}
}

func lockKey(event types.OrderTriggerEvent) string {
	return "order-lock:" + tasks.TaskID(event)
}

func broadcastKey(event types.OrderTriggerEvent) string {
	return "order-broadcast:" + tasks.TaskID(event)
}

// broadcast marker value: "<unix timestamp>:<tx hash>"
func encodeBroadcast(res *types.ExecuteResult) string {
	return strconv.FormatInt(res.Timestamp, 10) + ":" + res.TxHash
}

func decodeBroadcast(value string) (int64, string, error) {
	ts, txHash, ok := strings.Cut(value, ":")
	if !ok || txHash == "" {
		return 0, "", fmt.Errorf("malformed broadcast marker %q", value)
	}
	timestamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed broadcast marker %q: %w", value, err)
	}
	return timestamp, txHash, nil
}

func (s *WorkerService) HandleOrderTrigger(ctx context.Context, t *asynq.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event, err := tasks.ParseOrderTriggerEvent(t.Payload())
	if err != nil {
		return fmt.Errorf("invalid trigger payload: %v: %w", err, asynq.SkipRetry)
	}
	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", event.OrderID, asynq.SkipRetry)
	}

	defer s.measureTime("worker.order.trigger.latency", time.Now(), nil)
	s.incCounter("worker.order.trigger", nil)
	logger := s.logger.WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"slot":     event.Slot,
	})

	order, err := s.db.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("order %s not found: %w", orderID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("db.GetOrder failed: %w", err)
	}
	if order.Status != types.OrderStatusActive {
		logger.WithField("status", order.Status).Info("order no longer active, skipping")
		return nil
	}
	if order.Slot() != event.Slot {
		logger.WithField("current_slot", order.Slot()).Info("stale trigger, skipping")
		return nil
	}

	acquired, err := s.locker.SetNX(ctx, lockKey(event), "1", s.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire order lock: %w", err)
	}
	if !acquired {
		logger.Info("trigger already being handled")
		return nil
	}
	defer func() {
		if err := s.locker.Delete(context.Background(), lockKey(event)); err != nil {
			logger.WithError(err).Error("failed to release order lock")
		}
	}()

	reconciled, err := s.reconcile(ctx, logger, order, event)
	if err != nil {
		return err
	}
	if reconciled {
		logger.Warn("slot was already executed, trigger state reconciled")
		return nil
	}

	spec := order.Spec
	spec.OrderID = order.ID.String()
	state := order.State
	res, err := s.engine.Execute(ctx, types.OrderRequest{Order: spec, State: &state})
	return s.handleOutcome(ctx, logger, order, event, res, err)
}

// reconcile advances the stored state when the slot was already broadcast
// but the state update after it was lost. The execution row is looked up
// first, then the broadcast marker for a row that was never written.
func (s *WorkerService) reconcile(ctx context.Context, logger logrus.FieldLogger, order *types.OrderRecord, event types.OrderTriggerEvent) (bool, error) {
	trigger, err := plugin.NewTrigger(order.Spec)
	if err != nil {
		return false, fmt.Errorf("stored order is invalid: %v: %w", err, asynq.SkipRetry)
	}

	exec, err := s.db.GetExecutionBySlot(ctx, order.ID, event.Slot)
	switch {
	case err == nil:
		next := trigger.NextState(order.State, exec.CreatedAt)
		if err := s.db.UpdateOrderState(ctx, order.ID, next, statusFor(next)); err != nil {
			return false, fmt.Errorf("db.UpdateOrderState failed: %w", err)
		}
		s.clearBroadcast(logger, event)
		return true, nil
	case !errors.Is(err, storage.ErrNotFound):
		return false, fmt.Errorf("db.GetExecutionBySlot failed: %w", err)
	}

	marker, err := s.locker.Get(ctx, broadcastKey(event))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read broadcast marker: %w", err)
	}
	timestamp, txHash, err := decodeBroadcast(marker)
	if err != nil {
		return false, fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	next := trigger.NextState(order.State, time.Unix(timestamp, 0))
	_, err = s.db.RecordExecution(ctx, types.ExecutionRecord{
		OrderID: order.ID,
		Slot:    event.Slot,
		TxHash:  txHash,
		Status:  types.ExecutionStatusSubmitted,
		Metadata: map[string]interface{}{
			"timestamp": timestamp,
			"recovered": true,
			"tx_hash":   txHash,
		},
	}, next, statusFor(next))
	if err != nil {
		return false, fmt.Errorf("db.RecordExecution failed: %w", err)
	}
	s.clearBroadcast(logger, event)
	return true, nil
}

func (s *WorkerService) clearBroadcast(logger logrus.FieldLogger, event types.OrderTriggerEvent) {
	if err := s.locker.Delete(context.Background(), broadcastKey(event)); err != nil {
		logger.WithError(err).Warn("failed to clear broadcast marker")
	}
}

func statusFor(state types.TriggerState) types.OrderStatus {
	if state.Completed {
		return types.OrderStatusCompleted
	}
	return types.OrderStatusActive
}

// handleOutcome maps an execution outcome to the order status and the task
// result. Rejections are recorded and the task finishes, the next scheduler
// tick triggers the order again. Returning SkipRetry would archive the task
// and its id would block every later enqueue of the same slot.
func (s *WorkerService) handleOutcome(ctx context.Context, logger logrus.FieldLogger, order *types.OrderRecord, event types.OrderTriggerEvent, res *types.ExecuteResult, execErr error) error {
	kind := types.ErrorKindOf(execErr)
	tags := []string{"kind:" + string(kind), "order_type:" + string(order.Spec.Type)}

	if execErr == nil {
		s.incCounter("worker.order.execute", tags)
		return s.recordSuccess(ctx, logger, order, event, res)
	}
	s.incCounter("worker.order.execute.error", tags)

	switch {
	case errors.Is(execErr, types.ErrConditionNotMet):
		logger.Debug("condition not met")
		return nil
	case errors.Is(execErr, types.ErrOrderExpired):
		logger.Info("order expired")
		return s.setStatus(ctx, order.ID, types.OrderStatusExpired)
	case errors.Is(execErr, types.ErrOrderCompleted):
		completed := order.State
		completed.Completed = true
		if err := s.db.UpdateOrderState(ctx, order.ID, completed, types.OrderStatusCompleted); err != nil {
			return fmt.Errorf("db.UpdateOrderState failed: %w", err)
		}
		return nil
	case kind == types.KindQuoteProvider:
		logger.WithError(execErr).Warn("quote provider failed, retrying")
		return fmt.Errorf("engine.Execute failed: %w", execErr)
	case errors.Is(execErr, types.ErrSubmission):
		logger.WithError(execErr).Error("swap submission failed")
		s.recordFailure(ctx, logger, order.ID, event.Slot, types.ExecutionStatusSubmissionFailed, kind, execErr)
		return nil
	case kind == types.KindValidation, kind == types.KindInsufficientFunds, kind == types.KindPolicyDenied:
		logger.WithError(execErr).Warn("order rejected")
		s.recordFailure(ctx, logger, order.ID, event.Slot, types.ExecutionStatusRejected, kind, execErr)
		return nil
	default:
		logger.WithError(execErr).Error("order execution failed")
		return fmt.Errorf("engine.Execute failed: %w", execErr)
	}
}

func (s *WorkerService) setStatus(ctx context.Context, id uuid.UUID, status types.OrderStatus) error {
	if err := s.db.UpdateOrderStatus(ctx, id, status); err != nil {
		return fmt.Errorf("db.UpdateOrderStatus failed: %w", err)
	}
	return nil
}

// recordSuccess persists a broadcast swap in three steps so that a failure
// at any point leaves something reconcile can find: the Redis marker, the
// execution row, then the trigger state. Failures are returned as retryable
// errors, the retry reconciles instead of submitting again.
func (s *WorkerService) recordSuccess(ctx context.Context, logger logrus.FieldLogger, order *types.OrderRecord, event types.OrderTriggerEvent, res *types.ExecuteResult) error {
	logger = logger.WithField("tx_hash", res.TxHash)
	if err := s.locker.Set(ctx, broadcastKey(event), encodeBroadcast(res), broadcastTTL); err != nil {
		logger.WithError(err).Error("failed to write broadcast marker")
	}

	exec := types.ExecutionRecord{
		OrderID: order.ID,
		Slot:    event.Slot,
		TxHash:  res.TxHash,
		Status:  types.ExecutionStatusSubmitted,
		Metadata: map[string]interface{}{
			"executed_amount": res.ExecutedAmount,
			"received_amount": res.ReceivedAmount,
			"execution_price": res.ExecutionPrice,
			"dex":             res.DexUsed,
			"timestamp":       res.Timestamp,
		},
	}
	id, err := s.db.CreateExecution(ctx, exec)
	if err != nil {
		logger.WithError(err).Error("failed to persist execution")
		return fmt.Errorf("db.CreateExecution failed: %w", err)
	}
	if err := s.db.UpdateOrderState(ctx, order.ID, res.State, statusFor(res.State)); err != nil {
		logger.WithError(err).Error("failed to advance trigger state")
		return fmt.Errorf("db.UpdateOrderState failed: %w", err)
	}
	s.clearBroadcast(logger, event)
	exec.ID = id
	exec.CreatedAt = time.Unix(res.Timestamp, 0)

	logger.WithField("completed", res.State.Completed).Info("order execution recorded")

	if s.archive != nil {
		key, err := s.archive.Store(ctx, storage.Receipt{Execution: exec, Order: order.Spec, Result: res})
		if err != nil {
			logger.WithError(err).Warn("failed to archive receipt")
		} else {
			logger.WithField("key", key).Debug("receipt archived")
		}
	}
	return nil
}

func (s *WorkerService) recordFailure(ctx context.Context, logger logrus.FieldLogger, orderID uuid.UUID, slot int64, status types.ExecutionStatus, kind types.ErrorKind, execErr error) {
	_, err := s.db.CreateExecution(ctx, types.ExecutionRecord{
		OrderID: orderID,
		Slot:    slot,
		Status:  status,
		Metadata: map[string]interface{}{
			"error":      execErr.Error(),
			"error_kind": kind,
			"timestamp":  time.Now().Unix(),
		},
	})
	if err != nil {
		logger.WithError(err).Error("failed to record execution failure")
	}
}

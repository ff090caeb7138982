package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/internal/tasks"
	"github.com/vultisig/trigger-plugin/internal/types"
)

const DefaultSpec = "@every 1m"

type Config struct {
	Spec string `mapstructure:"spec" json:"spec,omitempty"`
}

type OrderSource interface {
	GetDueOrders(ctx context.Context, now time.Time) ([]types.OrderRecord, error)
	ExpireLimitOrders(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Inspector resolves task id conflicts. An archived task keeps its id for
// the archive retention period, so it is deleted before enqueueing again.
type Inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// Scheduler turns due orders into trigger tasks on every cron tick.
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	db        OrderSource
	queue     Enqueuer
	inspector Inspector
	logger    logrus.FieldLogger
	now       func() time.Time
}

func New(cfg Config, db OrderSource, queue Enqueuer, inspector Inspector, logger logrus.FieldLogger) (*Scheduler, error) {
	if db == nil || queue == nil || inspector == nil {
		return nil, fmt.Errorf("order source, queue and inspector are required")
	}
	spec := cfg.Spec
	if spec == "" {
		spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", spec, err)
	}
	return &Scheduler{
		cron:      cron.New(),
		spec:      spec,
		db:        db,
		queue:     queue,
		inspector: inspector,
		logger:    logger.WithField("service", "scheduler"),
		now:       time.Now,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.WithError(err).Error("scheduler tick failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule tick: %w", err)
	}
	s.cron.Start()
	s.logger.WithField("spec", s.spec).Info("scheduler started")
	return nil
}

// Stop halts the cron and returns a context done once a running tick ends.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Tick expires lapsed single fire orders, then enqueues one task per due
// order. It returns the number of tasks enqueued.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now()

	expired, err := s.db.ExpireLimitOrders(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, id := range expired {
		s.logger.WithField("order_id", id).Info("order expired")
	}

	orders, err := s.db.GetDueOrders(ctx, now)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, order := range orders {
		event := types.OrderTriggerEvent{OrderID: order.ID.String(), Slot: order.Slot()}
		ok, err := s.enqueue(ctx, event)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to enqueue trigger")
			continue
		}
		if ok {
			enqueued++
		}
	}
	if enqueued > 0 {
		s.logger.WithField("count", enqueued).Info("enqueued order triggers")
	}
	return enqueued, nil
}

// enqueue reports false when the occurrence is already pending or running.
func (s *Scheduler) enqueue(ctx context.Context, event types.OrderTriggerEvent) (bool, error) {
	task, err := tasks.NewOrderTriggerTask(event)
	if err != nil {
		return false, err
	}
	_, err = s.queue.EnqueueContext(ctx, task)
	if !errors.Is(err, asynq.ErrTaskIDConflict) && !errors.Is(err, asynq.ErrDuplicateTask) {
		return err == nil, err
	}

	id := tasks.TaskID(event)
	logger := s.logger.WithFields(logrus.Fields{"order_id": event.OrderID, "task_id": id})
	info, err := s.inspector.GetTaskInfo(tasks.QUEUE_NAME, id)
	if err != nil {
		return false, fmt.Errorf("failed to inspect conflicting task %s: %w", id, err)
	}
	if info.State != asynq.TaskStateArchived {
		logger.WithField("state", info.State.String()).Info("trigger already queued")
		return false, nil
	}
	logger.Warn("replacing archived trigger")
	if err := s.inspector.DeleteTask(tasks.QUEUE_NAME, id); err != nil {
		return false, fmt.Errorf("failed to delete archived task %s: %w", id, err)
	}
	if _, err := s.queue.EnqueueContext(ctx, task); err != nil {
		return false, err
	}
	return true, nil
}

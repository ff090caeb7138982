package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vultisig/trigger-plugin/internal/types"
)

const (
	QUEUE_NAME       = "trigger_plugin_queue"
	TypeOrderTrigger = "order:trigger"
)

// TaskID names a trigger occurrence. While a task with this id is pending
// or running, enqueueing the same occurrence again is rejected by asynq.
func TaskID(event types.OrderTriggerEvent) string {
	return fmt.Sprintf("%s:%d", event.OrderID, event.Slot)
}

func NewOrderTriggerTask(event types.OrderTriggerEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger event: %w", err)
	}
	return asynq.NewTask(TypeOrderTrigger, payload,
		asynq.TaskID(TaskID(event)),
		asynq.Queue(QUEUE_NAME),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	), nil
}

func ParseOrderTriggerEvent(payload []byte) (types.OrderTriggerEvent, error) {
	var event types.OrderTriggerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, err
	}
	if event.OrderID == "" {
		return event, fmt.Errorf("trigger event has no order id")
	}
	return event, nil
}

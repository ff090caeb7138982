package types

import (
	"time"

	"github.com/google/uuid"
)

// OrderTriggerEvent is the payload of a queued trigger task. Slot identifies
// the trigger occurrence so duplicate enqueues of the same slot collapse.
type OrderTriggerEvent struct {
	OrderID string `json:"order_id"`
	Slot    int64  `json:"slot"`
}

type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "ACTIVE"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderRecord is an order as the caller persists it: the immutable spec
// and the trigger state it feeds back into the engine.
type OrderRecord struct {
	ID        uuid.UUID    `json:"id"`
	Spec      OrderSpec    `json:"order"`
	State     TriggerState `json:"state"`
	Status    OrderStatus  `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type ExecutionStatus string

const (
	ExecutionStatusSubmitted        ExecutionStatus = "SUBMITTED"
	ExecutionStatusSubmissionFailed ExecutionStatus = "SUBMISSION_FAILED"
	ExecutionStatusRejected         ExecutionStatus = "REJECTED"
)

type ExecutionRecord struct {
	ID        uuid.UUID              `json:"id"`
	OrderID   uuid.UUID              `json:"order_id"`
	Slot      int64                  `json:"slot"`
	TxHash    string                 `json:"tx_hash,omitempty"`
	Status    ExecutionStatus        `json:"status"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
}

// Slot identifies the pending trigger occurrence: the scheduled time for
// recurring orders, zero for single fire orders.
func (r OrderRecord) Slot() int64 {
	return r.State.NextExecutionTime
}

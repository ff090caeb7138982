package dca

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vultisig/trigger-plugin/internal/types"
)

// Trigger fires a fixed size swap on a schedule until the configured
// number of executions is used up.
type Trigger struct {
	frequency       types.Frequency
	interval        int64
	totalExecutions int
	firstExecution  int64
}

func New(spec types.OrderSpec) (*Trigger, error) {
	if spec.Frequency == "" {
		return nil, types.NewValidationError("frequency is required for DCA orders")
	}
	interval, err := spec.Frequency.Seconds()
	if err != nil {
		return nil, types.NewValidationError("%v", err)
	}
	if spec.TotalExecutions < 1 {
		return nil, types.NewValidationError("totalExecutions is required for DCA orders and must be at least 1")
	}
	if spec.TotalExecutions > types.MaxTotalExecutions {
		return nil, types.NewValidationError("totalExecutions must not exceed %d", types.MaxTotalExecutions)
	}
	if spec.NextExecutionTime <= 0 {
		return nil, types.NewValidationError("nextExecutionTime is required for DCA orders")
	}

	return &Trigger{
		frequency:       spec.Frequency,
		interval:        interval,
		totalExecutions: spec.TotalExecutions,
		firstExecution:  spec.NextExecutionTime,
	}, nil
}

func (t *Trigger) Type() types.OrderType {
	return types.OrderTypeDCA
}

func (t *Trigger) ValidateSchedule(now time.Time) error {
	if t.firstExecution <= now.Unix() {
		return types.NewValidationError("nextExecutionTime must be in the future")
	}
	return nil
}

func (t *Trigger) InitialState() types.TriggerState {
	return types.TriggerState{
		ExecutionsRemaining: t.totalExecutions,
		NextExecutionTime:   t.firstExecution,
	}
}

func (t *Trigger) NeedsPrice() bool {
	return false
}

// ShouldFire ignores price: a DCA order is due once now reaches the
// scheduled time.
func (t *Trigger) ShouldFire(state types.TriggerState, now time.Time, _ *decimal.Decimal) types.Verdict {
	if state.Completed || state.ExecutionsRemaining <= 0 {
		return types.VerdictCompleted
	}
	if now.Unix() >= state.NextExecutionTime {
		return types.VerdictFire
	}
	return types.VerdictWait
}

func (t *Trigger) NextState(state types.TriggerState, now time.Time) types.TriggerState {
	remaining := max(0, state.ExecutionsRemaining-1)
	if remaining == 0 {
		return types.TriggerState{ExecutionsRemaining: 0, Completed: true}
	}
	return types.TriggerState{
		ExecutionsRemaining: remaining,
		NextExecutionTime:   now.Unix() + t.interval,
	}
}

func (t *Trigger) Progress(state types.TriggerState) types.Progress {
	remaining := state.ExecutionsRemaining
	p := types.Progress{ExecutionsRemaining: &remaining}
	if remaining > 0 && !state.Completed {
		next := state.NextExecutionTime
		p.NextExecutionTime = &next
	}
	return p
}

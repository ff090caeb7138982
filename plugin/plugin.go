package plugin

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vultisig/trigger-plugin/internal/types"
	"github.com/vultisig/trigger-plugin/plugin/dca"
	"github.com/vultisig/trigger-plugin/plugin/limit"
)

// Trigger is the per order type behaviour. Implementations are pure: the
// same inputs always produce the same verdict and next state.
type Trigger interface {
	Type() types.OrderType
	// ValidateSchedule applies the creation time rules that depend on now.
	ValidateSchedule(now time.Time) error
	InitialState() types.TriggerState
	// NeedsPrice reports whether ShouldFire depends on a current price.
	NeedsPrice() bool
	ShouldFire(state types.TriggerState, now time.Time, price *decimal.Decimal) types.Verdict
	NextState(state types.TriggerState, now time.Time) types.TriggerState
	Progress(state types.TriggerState) types.Progress
}

var (
	_ Trigger = (*dca.Trigger)(nil)
	_ Trigger = (*limit.Trigger)(nil)
)

// NewTrigger builds the trigger for spec.Type, validating the type specific
// parameter group.
func NewTrigger(spec types.OrderSpec) (Trigger, error) {
	switch spec.Type {
	case types.OrderTypeDCA:
		return dca.New(spec)
	case types.OrderTypeLimit:
		return limit.New(spec)
	default:
		return nil, types.NewValidationError("unknown order type: %q", string(spec.Type))
	}
}

// StateOrInitial returns state when the caller supplied one, otherwise the
// initial trigger state derived from the order spec.
func StateOrInitial(t Trigger, state *types.TriggerState) types.TriggerState {
	if state == nil {
		return t.InitialState()
	}
	return *state
}

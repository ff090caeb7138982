package limit

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vultisig/trigger-plugin/internal/types"
)

// Trigger is a one shot order that fires when the quoted price crosses the
// target, unless it has expired first.
type Trigger struct {
	target     decimal.Decimal
	condition  types.Condition
	expiration int64
}

func New(spec types.OrderSpec) (*Trigger, error) {
	if strings.TrimSpace(spec.TargetPrice) == "" {
		return nil, types.NewValidationError("targetPrice is required for LIMIT orders")
	}
	target, err := decimal.NewFromString(strings.TrimSpace(spec.TargetPrice))
	if err != nil {
		return nil, types.NewValidationError("targetPrice %q is not a decimal", spec.TargetPrice)
	}
	if !target.IsPositive() {
		return nil, types.NewValidationError("targetPrice must be positive")
	}
	switch spec.Condition {
	case types.ConditionGreaterThan, types.ConditionLessThan:
	case "":
		return nil, types.NewValidationError("condition is required for LIMIT orders")
	default:
		return nil, types.NewValidationError("unknown condition: %q", string(spec.Condition))
	}
	if spec.ExpirationTime <= 0 {
		return nil, types.NewValidationError("expirationTime is required for LIMIT orders")
	}

	return &Trigger{
		target:     target,
		condition:  spec.Condition,
		expiration: spec.ExpirationTime,
	}, nil
}

func (t *Trigger) Type() types.OrderType {
	return types.OrderTypeLimit
}

func (t *Trigger) ValidateSchedule(now time.Time) error {
	if t.expiration <= now.Unix() {
		return types.NewValidationError("expirationTime must be in the future")
	}
	return nil
}

func (t *Trigger) InitialState() types.TriggerState {
	return types.TriggerState{}
}

func (t *Trigger) NeedsPrice() bool {
	return true
}

// ShouldFire checks expiry before anything else, so an expired order never
// fires even when the price condition holds. Both boundaries are inclusive.
func (t *Trigger) ShouldFire(state types.TriggerState, now time.Time, price *decimal.Decimal) types.Verdict {
	if now.Unix() >= t.expiration {
		return types.VerdictExpired
	}
	if state.Completed {
		return types.VerdictCompleted
	}
	if price == nil {
		return types.VerdictIndeterminate
	}

	var met bool
	switch t.condition {
	case types.ConditionGreaterThan:
		met = price.GreaterThanOrEqual(t.target)
	case types.ConditionLessThan:
		met = price.LessThanOrEqual(t.target)
	}
	if met {
		return types.VerdictFire
	}
	return types.VerdictWait
}

// NextState is terminal: a limit order fires at most once.
func (t *Trigger) NextState(_ types.TriggerState, _ time.Time) types.TriggerState {
	return types.TriggerState{Completed: true}
}

func (t *Trigger) Progress(_ types.TriggerState) types.Progress {
	return types.Progress{TargetPrice: t.target.String()}
}

package types

import (
	"fmt"
	"strings"
)

type OrderType string

const (
	OrderTypeDCA   OrderType = "DCA"
	OrderTypeLimit OrderType = "LIMIT"
)

type Frequency string

const (
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
)

// Seconds returns the fixed offset between two DCA executions.
// MONTHLY is a 30 day approximation, not calendar aware.
func (f Frequency) Seconds() (int64, error) {
	switch f {
	case FrequencyDaily:
		return 86400, nil
	case FrequencyWeekly:
		return 604800, nil
	case FrequencyBiweekly:
		return 1209600, nil
	case FrequencyMonthly:
		return 2592000, nil
	default:
		return 0, fmt.Errorf("unknown frequency: %q", string(f))
	}
}

type Condition string

const (
	ConditionGreaterThan Condition = "GREATER_THAN"
	ConditionLessThan    Condition = "LESS_THAN"
)

const (
	DefaultSlippageBps = 100
	MaxTotalExecutions = 1000
)

// OrderSpec is the request a user registers. It is never mutated by the
// engine; progress lives in TriggerState.
type OrderSpec struct {
	OrderID          string    `json:"orderId,omitempty"`
	Type             OrderType `json:"orderType" validate:"required,oneof=DCA LIMIT"`
	WalletAddress    string    `json:"walletAddress" validate:"required,eth_addr"`
	SourceAsset      string    `json:"fromTokenAddress" validate:"required,eth_addr"`
	DestinationAsset string    `json:"toTokenAddress" validate:"required,eth_addr"`
	Amount           string    `json:"amount" validate:"required"`
	Network          string    `json:"network" validate:"required"`
	SlippageBps      int       `json:"slippageBps,omitempty" validate:"omitempty,min=1,max=5000"`

	// DCA
	Frequency         Frequency `json:"frequency,omitempty"`
	TotalExecutions   int       `json:"totalExecutions,omitempty"`
	NextExecutionTime int64     `json:"nextExecutionTime,omitempty"`

	// LIMIT
	TargetPrice    string    `json:"targetPrice,omitempty"`
	Condition      Condition `json:"condition,omitempty"`
	ExpirationTime int64     `json:"expirationTime,omitempty"`
}

// WithDefaults returns a copy with the default slippage applied.
func (o OrderSpec) WithDefaults() OrderSpec {
	if o.SlippageBps == 0 {
		o.SlippageBps = DefaultSlippageBps
	}
	o.Type = OrderType(strings.ToUpper(string(o.Type)))
	return o
}

// TriggerState is owned by the caller between calls and round-tripped on
// every precheck/execute.
type TriggerState struct {
	ExecutionsRemaining int   `json:"executionsRemaining"`
	NextExecutionTime   int64 `json:"nextExecutionTime,omitempty"`
	Completed           bool  `json:"completed"`
}

type Verdict string

const (
	VerdictFire          Verdict = "FIRE"
	VerdictWait          Verdict = "WAIT"
	VerdictExpired       Verdict = "EXPIRED"
	VerdictIndeterminate Verdict = "INDETERMINATE"
	VerdictCompleted     Verdict = "COMPLETED"
)

// Fires reports whether the order should be submitted now. Every verdict
// other than FIRE, including INDETERMINATE, means not firing.
func (v Verdict) Fires() bool {
	return v == VerdictFire
}

// OrderRequest is the body accepted by precheck and execute.
type OrderRequest struct {
	Order OrderSpec     `json:"order" validate:"required"`
	State *TriggerState `json:"state,omitempty"`
}

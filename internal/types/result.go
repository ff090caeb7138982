package types

type DexQuote struct {
	EstimatedOutput string `json:"estimatedOutput"`
	PriceImpact     string `json:"priceImpact"`
	DexName         string `json:"dexName"`
	RouterAddress   string `json:"routerAddress"`
}

// PrecheckResult is a non-binding report. ConditionMet=false means the
// order is not actionable yet, it is not a failure.
type PrecheckResult struct {
	OrderValid          bool      `json:"orderValid"`
	ConditionMet        bool      `json:"conditionMet"`
	Expired             bool      `json:"expired,omitempty"`
	CurrentPrice        string    `json:"currentPrice,omitempty"`
	TargetPrice         string    `json:"targetPrice,omitempty"`
	UserBalance         string    `json:"userBalance"`
	TokenAllowance      string    `json:"tokenAllowance,omitempty"`
	AllowanceSufficient *bool     `json:"allowanceSufficient,omitempty"`
	EstimatedGas        uint64    `json:"estimatedGas,omitempty"`
	NextExecutionTime   *int64    `json:"nextExecutionTime,omitempty"`
	ExecutionsRemaining *int      `json:"executionsRemaining,omitempty"`
	DexQuote            *DexQuote `json:"dexQuote,omitempty"`
}

type ExecuteResult struct {
	TxHash              string       `json:"txHash"`
	OrderType           OrderType    `json:"orderType"`
	FromTokenAddress    string       `json:"fromTokenAddress"`
	ToTokenAddress      string       `json:"toTokenAddress"`
	ExecutedAmount      string       `json:"executedAmount"`
	ReceivedAmount      string       `json:"receivedAmount"`
	ExecutionPrice      string       `json:"executionPrice"`
	Timestamp           int64        `json:"timestamp"`
	OrderID             string       `json:"orderId,omitempty"`
	ExecutionsRemaining *int         `json:"executionsRemaining,omitempty"`
	NextExecutionTime   *int64       `json:"nextExecutionTime,omitempty"`
	DexUsed             string       `json:"dexUsed,omitempty"`
	State               TriggerState `json:"state"`
}

type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Progress holds the type specific fields reported back to the caller.
type Progress struct {
	ExecutionsRemaining *int
	NextExecutionTime   *int64
	TargetPrice         string
}

package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type QuoteRequest struct {
	ChainID     int64
	FromToken   common.Address
	ToToken     common.Address
	Amount      *big.Int
	SlippageBps int
	Wallet      common.Address
}

// SwapQuote is a priced swap plus the router call that executes it.
type SwapQuote struct {
	ToAmount *big.Int
	Gas      uint64
	Router   common.Address
	CallData []byte
	Value    *big.Int
	DexName  string
	// PriceImpact is a percentage, nil when the provider does not report one.
	PriceImpact *decimal.Decimal
}

type SwapTx struct {
	OrderID  string
	ChainID  int64
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

type SubmitResult struct {
	TxHash string
	// ReceivedAmount is the realized output in base units, nil when the
	// broadcaster does not report it.
	ReceivedAmount *big.Int
}

type PolicyVerdict struct {
	Allowed bool
	Reason  string
}

package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/common"
	"github.com/vultisig/trigger-plugin/internal/types"
	"github.com/vultisig/trigger-plugin/plugin"
)

type QuoteProvider interface {
	Quote(ctx context.Context, req types.QuoteRequest) (*types.SwapQuote, error)
}

type ChainReader interface {
	Decimals(ctx context.Context, chainID int64, token gcommon.Address) (uint8, error)
	Balance(ctx context.Context, chainID int64, token, owner gcommon.Address) (*big.Int, error)
	Allowance(ctx context.Context, chainID int64, token, owner, spender gcommon.Address) (*big.Int, error)
}

type TxSubmitter interface {
	Submit(ctx context.Context, tx types.SwapTx) (*types.SubmitResult, error)
}

// Governor is an external rate limit policy with its own allow/deny verdict.
type Governor interface {
	Allow(ctx context.Context, spec types.OrderSpec) (types.PolicyVerdict, error)
}

type Orders interface {
	Precheck(ctx context.Context, req types.OrderRequest) (*types.PrecheckResult, error)
	Execute(ctx context.Context, req types.OrderRequest) (*types.ExecuteResult, error)
}

var _ Orders = (*Engine)(nil)

type EngineConfig struct {
	GasMarginPercent uint64 `mapstructure:"gas_margin_percent" json:"gas_margin_percent,omitempty"`
}

const defaultGasMarginPercent = 10

// Engine evaluates and executes trigger orders. It holds no order state:
// every call receives the order spec and trigger state from the caller and
// returns the next state for the caller to persist.
type Engine struct {
	quotes           QuoteProvider
	chain            ChainReader
	submitter        TxSubmitter
	governor         Governor
	gasMarginPercent uint64
	logger           logrus.FieldLogger
	now              func() time.Time
}

// NewEngine wires the collaborators. governor may be nil.
func NewEngine(cfg EngineConfig, quotes QuoteProvider, chain ChainReader, submitter TxSubmitter, governor Governor, logger logrus.FieldLogger) (*Engine, error) {
	if quotes == nil {
		return nil, fmt.Errorf("quote provider cannot be nil")
	}
	if chain == nil {
		return nil, fmt.Errorf("chain reader cannot be nil")
	}
	if submitter == nil {
		return nil, fmt.Errorf("tx submitter cannot be nil")
	}
	margin := cfg.GasMarginPercent
	if margin == 0 {
		margin = defaultGasMarginPercent
	}
	return &Engine{
		quotes:           quotes,
		chain:            chain,
		submitter:        submitter,
		governor:         governor,
		gasMarginPercent: margin,
		logger:           logger,
		now:              time.Now,
	}, nil
}

type orderContext struct {
	spec         types.OrderSpec
	trigger      plugin.Trigger
	state        types.TriggerState
	chainID      int64
	wallet       gcommon.Address
	from         gcommon.Address
	to           gcommon.Address
	fromNative   bool
	fromDecimals uint8
	toDecimals   uint8
	amount       decimal.Decimal
	amountRaw    *big.Int
}

func (e *Engine) validate(spec types.OrderSpec, state *types.TriggerState) (*orderContext, error) {
	trigger, err := plugin.ValidateOrder(spec)
	if err != nil {
		return nil, err
	}
	spec = spec.WithDefaults()
	chainID, err := common.ChainID(spec.Network)
	if err != nil {
		return nil, types.NewValidationError("%v", err)
	}
	return &orderContext{
		spec:       spec,
		trigger:    trigger,
		state:      plugin.StateOrInitial(trigger, state),
		chainID:    chainID,
		wallet:     gcommon.HexToAddress(spec.WalletAddress),
		from:       gcommon.HexToAddress(spec.SourceAsset),
		to:         gcommon.HexToAddress(spec.DestinationAsset),
		fromNative: common.IsNativeAsset(spec.SourceAsset),
		amount:     decimal.RequireFromString(strings.TrimSpace(spec.Amount)),
	}, nil
}

func (e *Engine) loadAssets(ctx context.Context, oc *orderContext) error {
	var err error
	oc.fromDecimals, err = e.chain.Decimals(ctx, oc.chainID, oc.from)
	if err != nil {
		return fmt.Errorf("failed to read decimals of %s: %w", oc.spec.SourceAsset, err)
	}
	oc.toDecimals, err = e.chain.Decimals(ctx, oc.chainID, oc.to)
	if err != nil {
		return fmt.Errorf("failed to read decimals of %s: %w", oc.spec.DestinationAsset, err)
	}
	oc.amountRaw, err = common.ToBaseUnits(oc.amount, oc.fromDecimals)
	if err != nil {
		return types.NewValidationError("%v", err)
	}
	if oc.amountRaw.Sign() <= 0 {
		return types.NewValidationError("amount must be positive")
	}
	return nil
}

func (e *Engine) readBalance(ctx context.Context, oc *orderContext) (*big.Int, error) {
	balance, err := e.chain.Balance(ctx, oc.chainID, oc.from, oc.wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if err := sufficient("balance", oc.spec.SourceAsset, oc.amountRaw, balance, oc.fromDecimals); err != nil {
		return nil, err
	}
	return balance, nil
}

func (e *Engine) fetchQuote(ctx context.Context, oc *orderContext) (*types.SwapQuote, error) {
	q, err := e.quotes.Quote(ctx, types.QuoteRequest{
		ChainID:     oc.chainID,
		FromToken:   oc.from,
		ToToken:     oc.to,
		Amount:      oc.amountRaw,
		SlippageBps: oc.spec.SlippageBps,
		Wallet:      oc.wallet,
	})
	if err != nil {
		if errors.Is(err, types.ErrQuoteProvider) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteProvider, err)
	}
	if q.ToAmount == nil || q.ToAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quote has no output amount", types.ErrQuoteProvider)
	}
	if q.Router == (gcommon.Address{}) {
		return nil, fmt.Errorf("%w: quote has no router address", types.ErrQuoteProvider)
	}
	return q, nil
}

// quotedPrice is the destination amount received per unit of source asset.
func quotedPrice(oc *orderContext, toAmount *big.Int) decimal.Decimal {
	return common.FromBaseUnits(toAmount, oc.toDecimals).Div(oc.amount)
}

func sufficient(kind, asset string, required, available *big.Int, decimals uint8) error {
	if available != nil && available.Cmp(required) >= 0 {
		return nil
	}
	avail := available
	if avail == nil {
		avail = big.NewInt(0)
	}
	return &types.InsufficientFundsError{
		Kind:      kind,
		Asset:     asset,
		Required:  common.FromBaseUnits(required, decimals).String(),
		Available: common.FromBaseUnits(avail, decimals).String(),
		Shortfall: common.FromBaseUnits(new(big.Int).Sub(required, avail), decimals).String(),
	}
}

func dexQuote(oc *orderContext, q *types.SwapQuote) *types.DexQuote {
	impact := "unknown"
	if q.PriceImpact != nil {
		impact = q.PriceImpact.String()
	}
	return &types.DexQuote{
		EstimatedOutput: common.FromBaseUnits(q.ToAmount, oc.toDecimals).String(),
		PriceImpact:     impact,
		DexName:         q.DexName,
		RouterAddress:   q.Router.Hex(),
	}
}

// Precheck reports whether the order would succeed right now without
// submitting anything or changing its trigger state.
func (e *Engine) Precheck(ctx context.Context, req types.OrderRequest) (*types.PrecheckResult, error) {
	oc, err := e.validate(req.Order, req.State)
	if err != nil {
		return nil, err
	}
	logger := e.logger.WithFields(logrus.Fields{
		"order_id":   oc.spec.OrderID,
		"order_type": oc.spec.Type,
		"chain_id":   oc.chainID,
	})

	if err := e.loadAssets(ctx, oc); err != nil {
		return nil, err
	}
	balance, err := e.readBalance(ctx, oc)
	if err != nil {
		return nil, err
	}
	q, err := e.fetchQuote(ctx, oc)
	if err != nil {
		return nil, err
	}

	price := quotedPrice(oc, q.ToAmount)
	verdict := oc.trigger.ShouldFire(oc.state, e.now(), &price)
	progress := oc.trigger.Progress(oc.state)

	res := &types.PrecheckResult{
		OrderValid:          true,
		ConditionMet:        verdict.Fires(),
		Expired:             verdict == types.VerdictExpired,
		TargetPrice:         progress.TargetPrice,
		UserBalance:         common.FromBaseUnits(balance, oc.fromDecimals).String(),
		EstimatedGas:        q.Gas,
		NextExecutionTime:   progress.NextExecutionTime,
		ExecutionsRemaining: progress.ExecutionsRemaining,
		DexQuote:            dexQuote(oc, q),
	}
	if oc.trigger.NeedsPrice() {
		res.CurrentPrice = price.String()
	}

	if !oc.fromNative {
		allowance, err := e.chain.Allowance(ctx, oc.chainID, oc.from, oc.wallet, q.Router)
		if err != nil {
			return nil, fmt.Errorf("failed to read allowance: %w", err)
		}
		ok := allowance.Cmp(oc.amountRaw) >= 0
		res.TokenAllowance = common.FromBaseUnits(allowance, oc.fromDecimals).String()
		res.AllowanceSufficient = &ok
	}

	logger.WithFields(logrus.Fields{
		"verdict": verdict,
		"price":   price.String(),
	}).Debug("precheck completed")

	return res, nil
}

// Execute re-checks eligibility with a fresh time and price, then submits
// the swap. On any failure no transaction is sent and the caller's trigger
// state stays as it was.
func (e *Engine) Execute(ctx context.Context, req types.OrderRequest) (*types.ExecuteResult, error) {
	oc, err := e.validate(req.Order, req.State)
	if err != nil {
		return nil, err
	}
	orderID := oc.spec.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	logger := e.logger.WithFields(logrus.Fields{
		"order_id":   orderID,
		"order_type": oc.spec.Type,
		"chain_id":   oc.chainID,
	})

	firedAt := e.now()
	if err := e.eligible(oc, firedAt, nil); err != nil {
		logger.WithError(err).Info("order not eligible")
		return nil, err
	}

	if err := e.loadAssets(ctx, oc); err != nil {
		return nil, err
	}
	if _, err := e.readBalance(ctx, oc); err != nil {
		return nil, err
	}
	q, err := e.fetchQuote(ctx, oc)
	if err != nil {
		return nil, err
	}

	if oc.trigger.NeedsPrice() {
		price := quotedPrice(oc, q.ToAmount)
		firedAt = e.now()
		if err := e.eligible(oc, firedAt, &price); err != nil {
			logger.WithError(err).WithField("price", price.String()).Info("order not eligible at quoted price")
			return nil, err
		}
	}

	if !oc.fromNative {
		allowance, err := e.chain.Allowance(ctx, oc.chainID, oc.from, oc.wallet, q.Router)
		if err != nil {
			return nil, fmt.Errorf("failed to read allowance: %w", err)
		}
		if err := sufficient("allowance", oc.spec.SourceAsset, oc.amountRaw, allowance, oc.fromDecimals); err != nil {
			return nil, err
		}
	}

	// The policy budget is only spent once every other check has passed.
	if e.governor != nil {
		verdict, err := e.governor.Allow(ctx, oc.spec)
		if err != nil {
			return nil, fmt.Errorf("rate limit policy check failed: %w", err)
		}
		if !verdict.Allowed {
			return nil, fmt.Errorf("%w: %s", types.ErrPolicyDenied, verdict.Reason)
		}
	}

	value := q.Value
	if value == nil {
		value = big.NewInt(0)
	}
	gasLimit := q.Gas * (100 + e.gasMarginPercent) / 100
	submitted, err := e.submitter.Submit(ctx, types.SwapTx{
		OrderID:  orderID,
		ChainID:  oc.chainID,
		From:     oc.wallet,
		To:       q.Router,
		Data:     q.CallData,
		Value:    value,
		GasLimit: gasLimit,
	})
	if err != nil {
		logger.WithError(err).Error("swap submission failed")
		if errors.Is(err, types.ErrSubmission) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrSubmission, err)
	}
	if submitted == nil || submitted.TxHash == "" {
		return nil, fmt.Errorf("%w: broadcaster returned no transaction hash", types.ErrSubmission)
	}

	received := q.ToAmount
	if submitted.ReceivedAmount != nil && submitted.ReceivedAmount.Sign() > 0 {
		received = submitted.ReceivedAmount
	}
	receivedAmount := common.FromBaseUnits(received, oc.toDecimals)
	next := oc.trigger.NextState(oc.state, firedAt)
	progress := oc.trigger.Progress(next)

	logger.WithFields(logrus.Fields{
		"tx_hash":   submitted.TxHash,
		"gas_limit": gasLimit,
		"completed": next.Completed,
	}).Info("order executed")

	return &types.ExecuteResult{
		TxHash:              submitted.TxHash,
		OrderType:           oc.spec.Type,
		FromTokenAddress:    oc.spec.SourceAsset,
		ToTokenAddress:      oc.spec.DestinationAsset,
		ExecutedAmount:      oc.amount.String(),
		ReceivedAmount:      receivedAmount.String(),
		ExecutionPrice:      receivedAmount.Div(oc.amount).String(),
		Timestamp:           firedAt.Unix(),
		OrderID:             orderID,
		ExecutionsRemaining: progress.ExecutionsRemaining,
		NextExecutionTime:   progress.NextExecutionTime,
		DexUsed:             q.DexName,
		State:               next,
	}, nil
}

// eligible maps a verdict to the typed rejection the caller sees. An
// indeterminate verdict is acceptable only before a price is known.
func (e *Engine) eligible(oc *orderContext, now time.Time, price *decimal.Decimal) error {
	switch verdict := oc.trigger.ShouldFire(oc.state, now, price); verdict {
	case types.VerdictFire:
		return nil
	case types.VerdictIndeterminate:
		if price == nil {
			return nil
		}
		return types.ErrConditionNotMet
	case types.VerdictExpired:
		return types.ErrOrderExpired
	case types.VerdictCompleted:
		return types.ErrOrderCompleted
	default:
		return types.ErrConditionNotMet
	}
}

package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/common"
	"github.com/vultisig/trigger-plugin/internal/types"
)

const (
	testWallet = "0x1111111111111111111111111111111111111111"
	testRouter = "0x2222222222222222222222222222222222222222"
	usdc       = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	weth       = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
)

const T int64 = 1_760_000_000

type fakeQuotes struct {
	toAmount *big.Int
	gas      uint64
	err      error
	calls    int
	last     types.QuoteRequest
}

func (f *fakeQuotes) Quote(_ context.Context, req types.QuoteRequest) (*types.SwapQuote, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &types.SwapQuote{
		ToAmount: new(big.Int).Set(f.toAmount),
		Gas:      f.gas,
		Router:   gcommon.HexToAddress(testRouter),
		CallData: []byte{0x12, 0x34},
		Value:    big.NewInt(0),
		DexName:  "uniswap_v3",
	}, nil
}

type fakeChain struct {
	decimals       map[gcommon.Address]uint8
	balance        *big.Int
	allowance      *big.Int
	allowanceCalls int
}

func (f *fakeChain) Decimals(_ context.Context, _ int64, token gcommon.Address) (uint8, error) {
	if d, ok := f.decimals[token]; ok {
		return d, nil
	}
	return common.NativeDecimals, nil
}

func (f *fakeChain) Balance(_ context.Context, _ int64, _, _ gcommon.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeChain) Allowance(_ context.Context, _ int64, _, _, spender gcommon.Address) (*big.Int, error) {
	f.allowanceCalls++
	if spender != gcommon.HexToAddress(testRouter) {
		return big.NewInt(0), nil
	}
	return f.allowance, nil
}

type fakeSubmitter struct {
	txs      []types.SwapTx
	err      error
	received *big.Int
}

func (f *fakeSubmitter) Submit(_ context.Context, tx types.SwapTx) (*types.SubmitResult, error) {
	f.txs = append(f.txs, tx)
	if f.err != nil {
		return nil, f.err
	}
	return &types.SubmitResult{TxHash: "0xabc", ReceivedAmount: f.received}, nil
}

type fakeGovernor struct {
	verdict types.PolicyVerdict
	calls   int
	// max > 0 allows the first max calls and denies the rest.
	max int
}

func (f *fakeGovernor) Allow(_ context.Context, _ types.OrderSpec) (types.PolicyVerdict, error) {
	f.calls++
	if f.max > 0 {
		if f.calls > f.max {
			return types.PolicyVerdict{Allowed: false, Reason: "window full"}, nil
		}
		return types.PolicyVerdict{Allowed: true}, nil
	}
	return f.verdict, nil
}

type harness struct {
	engine    *Engine
	quotes    *fakeQuotes
	chain     *fakeChain
	submitter *fakeSubmitter
	clock     int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		quotes: &fakeQuotes{toAmount: big.NewInt(4000_000000), gas: 200000},
		chain: &fakeChain{
			decimals: map[gcommon.Address]uint8{
				gcommon.HexToAddress(usdc): 6,
				gcommon.HexToAddress(weth): 18,
			},
			balance:   new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18)),
			allowance: new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18)),
		},
		submitter: &fakeSubmitter{},
		clock:     T,
	}
	engine, err := NewEngine(EngineConfig{}, h.quotes, h.chain, h.submitter, nil, logrus.New())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	engine.now = func() time.Time { return time.Unix(h.clock, 0) }
	h.engine = engine
	return h
}

func limitOrder(cond types.Condition, expiration int64) types.OrderSpec {
	return types.OrderSpec{
		OrderID:          "limit-1",
		Type:             types.OrderTypeLimit,
		WalletAddress:    testWallet,
		SourceAsset:      weth,
		DestinationAsset: usdc,
		Amount:           "1",
		Network:          "ethereum",
		TargetPrice:      "4000",
		Condition:        cond,
		ExpirationTime:   expiration,
	}
}

func dcaOrder() types.OrderSpec {
	return types.OrderSpec{
		OrderID:           "dca-1",
		Type:              types.OrderTypeDCA,
		WalletAddress:     testWallet,
		SourceAsset:       usdc,
		DestinationAsset:  weth,
		Amount:            "100",
		Network:           "base",
		Frequency:         types.FrequencyDaily,
		TotalExecutions:   3,
		NextExecutionTime: T,
	}
}

func TestExecuteRejectsPriceThatMovedAfterPrecheck(t *testing.T) {
	h := newHarness(t)
	req := types.OrderRequest{Order: limitOrder(types.ConditionGreaterThan, T+3600)}

	pre, err := h.engine.Precheck(context.Background(), req)
	if err != nil {
		t.Fatalf("Precheck failed: %v", err)
	}
	if !pre.ConditionMet {
		t.Fatal("precheck at the target price should report conditionMet")
	}
	if pre.CurrentPrice != "4000" || pre.TargetPrice != "4000" {
		t.Errorf("prices = %s/%s, want 4000/4000", pre.CurrentPrice, pre.TargetPrice)
	}

	h.quotes.toAmount = big.NewInt(3999_000000)
	_, err = h.engine.Execute(context.Background(), req)
	if !errors.Is(err, types.ErrConditionNotMet) {
		t.Fatalf("expected ErrConditionNotMet, got %v", err)
	}
	if len(h.submitter.txs) != 0 {
		t.Error("no transaction should be submitted")
	}
}

func TestDCAExecutionsAdvanceState(t *testing.T) {
	h := newHarness(t)
	h.quotes.toAmount = big.NewInt(25_000000000000000) // 0.025 WETH
	spec := dcaOrder()

	res, err := h.engine.Execute(context.Background(), types.OrderRequest{Order: spec})
	if err != nil {
		t.Fatalf("first execute failed: %v", err)
	}
	if res.ExecutionsRemaining == nil || *res.ExecutionsRemaining != 2 {
		t.Fatalf("executionsRemaining = %v, want 2", res.ExecutionsRemaining)
	}
	if res.NextExecutionTime == nil || *res.NextExecutionTime != T+86400 {
		t.Fatalf("nextExecutionTime = %v, want %d", res.NextExecutionTime, T+86400)
	}
	if res.State.Completed {
		t.Error("order should not be completed")
	}

	h.clock = T + 86400
	state := res.State
	res, err = h.engine.Execute(context.Background(), types.OrderRequest{Order: spec, State: &state})
	if err != nil {
		t.Fatalf("second execute failed: %v", err)
	}
	if *res.ExecutionsRemaining != 1 {
		t.Errorf("executionsRemaining = %d, want 1", *res.ExecutionsRemaining)
	}

	h.clock = T + 2*86400
	state = res.State
	res, err = h.engine.Execute(context.Background(), types.OrderRequest{Order: spec, State: &state})
	if err != nil {
		t.Fatalf("third execute failed: %v", err)
	}
	if *res.ExecutionsRemaining != 0 || res.NextExecutionTime != nil || !res.State.Completed {
		t.Errorf("order should be complete, got %+v", res.State)
	}

	state = res.State
	h.clock = T + 3*86400
	if _, err := h.engine.Execute(context.Background(), types.OrderRequest{Order: spec, State: &state}); !errors.Is(err, types.ErrOrderCompleted) {
		t.Errorf("expected ErrOrderCompleted, got %v", err)
	}
	if len(h.submitter.txs) != 3 {
		t.Errorf("submitted %d transactions, want 3", len(h.submitter.txs))
	}
	if res.ExecutionPrice != "0.00025" {
		t.Errorf("executionPrice = %s, want 0.00025", res.ExecutionPrice)
	}
}

func TestDCAExecuteBeforeScheduleIsNoop(t *testing.T) {
	h := newHarness(t)
	h.clock = T - 1

	_, err := h.engine.Execute(context.Background(), types.OrderRequest{Order: dcaOrder()})
	if !errors.Is(err, types.ErrConditionNotMet) {
		t.Fatalf("expected ErrConditionNotMet, got %v", err)
	}
	if h.quotes.calls != 0 || len(h.submitter.txs) != 0 {
		t.Error("no quote or submission expected before the schedule")
	}
}

func TestLimitExpiresBetweenPrecheckAndExecute(t *testing.T) {
	h := newHarness(t)
	h.quotes.toAmount = big.NewInt(3999_000000)
	req := types.OrderRequest{Order: limitOrder(types.ConditionLessThan, T)}

	h.clock = T - 1
	pre, err := h.engine.Precheck(context.Background(), req)
	if err != nil {
		t.Fatalf("Precheck failed: %v", err)
	}
	if !pre.ConditionMet || pre.Expired {
		t.Fatalf("precheck should be actionable, got %+v", pre)
	}

	h.clock = T + 1
	_, err = h.engine.Execute(context.Background(), req)
	if !errors.Is(err, types.ErrOrderExpired) {
		t.Fatalf("expected ErrOrderExpired, got %v", err)
	}
	if err.Error() != "order expired" {
		t.Errorf("error = %q", err)
	}
	if len(h.submitter.txs) != 0 {
		t.Error("expired order must not be submitted")
	}
}

func TestPrecheckReportsExpiredWithoutError(t *testing.T) {
	h := newHarness(t)
	h.clock = T + 10

	pre, err := h.engine.Precheck(context.Background(), types.OrderRequest{Order: limitOrder(types.ConditionGreaterThan, T)})
	if err != nil {
		t.Fatalf("Precheck failed: %v", err)
	}
	if pre.ConditionMet || !pre.Expired {
		t.Errorf("expected expired, not met; got %+v", pre)
	}
}

func TestPrecheckInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	h.chain.balance = big.NewInt(60_000000) // 60 USDC, order needs 100

	_, err := h.engine.Precheck(context.Background(), types.OrderRequest{Order: dcaOrder()})
	var funds *types.InsufficientFundsError
	if !errors.As(err, &funds) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if funds.Shortfall != "40" || funds.Kind != "balance" {
		t.Errorf("unexpected shortfall %+v", funds)
	}
	if !errors.Is(err, types.ErrInsufficientFunds) {
		t.Error("error should match ErrInsufficientFunds")
	}
}

func TestPrecheckReportsQuoteAndAllowance(t *testing.T) {
	h := newHarness(t)
	h.quotes.toAmount = big.NewInt(25_000000000000000)
	h.chain.allowance = big.NewInt(50_000000)

	pre, err := h.engine.Precheck(context.Background(), types.OrderRequest{Order: dcaOrder()})
	if err != nil {
		t.Fatalf("Precheck failed: %v", err)
	}
	if !pre.OrderValid || !pre.ConditionMet {
		t.Errorf("unexpected verdict %+v", pre)
	}
	if pre.AllowanceSufficient == nil || *pre.AllowanceSufficient {
		t.Error("allowance of 50 should be reported insufficient for 100")
	}
	if pre.TokenAllowance != "50" {
		t.Errorf("tokenAllowance = %s, want 50", pre.TokenAllowance)
	}
	if pre.DexQuote == nil || pre.DexQuote.EstimatedOutput != "0.025" {
		t.Fatalf("unexpected dex quote %+v", pre.DexQuote)
	}
	if pre.DexQuote.PriceImpact != "unknown" {
		t.Errorf("priceImpact = %s, want unknown", pre.DexQuote.PriceImpact)
	}
	if pre.DexQuote.RouterAddress != gcommon.HexToAddress(testRouter).Hex() {
		t.Errorf("routerAddress = %s", pre.DexQuote.RouterAddress)
	}
	if pre.CurrentPrice != "" {
		t.Error("DCA precheck should not report a current price")
	}
	if pre.ExecutionsRemaining == nil || *pre.ExecutionsRemaining != 3 {
		t.Errorf("executionsRemaining = %v, want 3", pre.ExecutionsRemaining)
	}
	if h.quotes.last.SlippageBps != types.DefaultSlippageBps {
		t.Errorf("slippage = %d, want default %d", h.quotes.last.SlippageBps, types.DefaultSlippageBps)
	}
	if h.quotes.last.Amount.Cmp(big.NewInt(100_000000)) != 0 {
		t.Errorf("quoted amount = %s, want 100000000", h.quotes.last.Amount)
	}
}

func TestExecuteInsufficientAllowance(t *testing.T) {
	h := newHarness(t)
	h.quotes.toAmount = big.NewInt(25_000000000000000)
	h.chain.allowance = big.NewInt(99_000000)

	_, err := h.engine.Execute(context.Background(), types.OrderRequest{Order: dcaOrder()})
	var funds *types.InsufficientFundsError
	if !errors.As(err, &funds) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if funds.Kind != "allowance" || funds.Shortfall != "1" {
		t.Errorf("unexpected error %+v", funds)
	}
	if len(h.submitter.txs) != 0 {
		t.Error("no transaction should be attempted")
	}
}

func TestExecutePadsGasAndTargetsRouter(t *testing.T) {
	h := newHarness(t)
	h.submitter.received = big.NewInt(4010_000000)

	res, err := h.engine.Execute(context.Background(), types.OrderRequest{Order: limitOrder(types.ConditionGreaterThan, T+60)})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(h.submitter.txs) != 1 {
		t.Fatalf("submitted %d transactions, want 1", len(h.submitter.txs))
	}
	tx := h.submitter.txs[0]
	if tx.GasLimit != 220000 {
		t.Errorf("gas limit = %d, want 220000", tx.GasLimit)
	}
	if tx.To != gcommon.HexToAddress(testRouter) || tx.ChainID != 1 {
		t.Errorf("unexpected tx target %s on chain %d", tx.To.Hex(), tx.ChainID)
	}
	if res.ReceivedAmount != "4010" || res.ExecutionPrice != "4010" {
		t.Errorf("received/price = %s/%s, want 4010/4010", res.ReceivedAmount, res.ExecutionPrice)
	}
	if !res.State.Completed || res.ExecutionsRemaining != nil {
		t.Errorf("limit order should be terminal and not report remaining executions: %+v", res)
	}
	if res.OrderID != "limit-1" || res.Timestamp != T {
		t.Errorf("unexpected order id/timestamp %s/%d", res.OrderID, res.Timestamp)
	}
}

func TestNativeSourceSkipsAllowance(t *testing.T) {
	h := newHarness(t)
	spec := limitOrder(types.ConditionGreaterThan, T+60)
	spec.SourceAsset = common.NativeAssetAddress

	if _, err := h.engine.Execute(context.Background(), types.OrderRequest{Order: spec}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if h.chain.allowanceCalls != 0 {
		t.Error("allowance must not be read for the native asset")
	}
}

func TestQuoteProviderFailure(t *testing.T) {
	h := newHarness(t)
	h.quotes.err = errors.New("connection refused")

	_, err := h.engine.Execute(context.Background(), types.OrderRequest{Order: dcaOrder()})
	if !errors.Is(err, types.ErrQuoteProvider) {
		t.Fatalf("expected ErrQuoteProvider, got %v", err)
	}
	if _, err := h.engine.Precheck(context.Background(), types.OrderRequest{Order: dcaOrder()}); !errors.Is(err, types.ErrQuoteProvider) {
		t.Fatalf("precheck: expected ErrQuoteProvider, got %v", err)
	}
}

func TestSubmissionFailure(t *testing.T) {
	h := newHarness(t)
	h.submitter.err = errors.New("nonce too low")

	res, err := h.engine.Execute(context.Background(), types.OrderRequest{Order: dcaOrder()})
	if !errors.Is(err, types.ErrSubmission) {
		t.Fatalf("expected ErrSubmission, got %v", err)
	}
	if res != nil {
		t.Error("no result expected on submission failure")
	}
}

func TestGovernorDenies(t *testing.T) {
	h := newHarness(t)
	h.engine.governor = &fakeGovernor{verdict: types.PolicyVerdict{Allowed: false, Reason: "daily cap reached"}}

	_, err := h.engine.Execute(context.Background(), types.OrderRequest{Order: dcaOrder()})
	if !errors.Is(err, types.ErrPolicyDenied) {
		t.Fatalf("expected ErrPolicyDenied, got %v", err)
	}
	if len(h.submitter.txs) != 0 {
		t.Error("no transaction should be submitted when the policy denies")
	}
}

func TestGovernorBudgetOnlySpentOnSubmission(t *testing.T) {
	h := newHarness(t)
	gov := &fakeGovernor{max: 1}
	h.engine.governor = gov
	req := types.OrderRequest{Order: limitOrder(types.ConditionGreaterThan, T+3600)}

	h.quotes.toAmount = big.NewInt(3000_000000)
	for i := 0; i < 3; i++ {
		if _, err := h.engine.Execute(context.Background(), req); !errors.Is(err, types.ErrConditionNotMet) {
			t.Fatalf("below target: expected ErrConditionNotMet, got %v", err)
		}
	}
	h.quotes.toAmount = big.NewInt(4000_000000)
	h.quotes.err = errors.New("503")
	if _, err := h.engine.Execute(context.Background(), req); !errors.Is(err, types.ErrQuoteProvider) {
		t.Fatalf("expected ErrQuoteProvider, got %v", err)
	}
	if gov.calls != 0 {
		t.Fatalf("governor consulted %d times before any submission", gov.calls)
	}

	h.quotes.err = nil
	res, err := h.engine.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("at target: %v", err)
	}
	if res.TxHash == "" || gov.calls != 1 {
		t.Errorf("tx %q, governor calls %d", res.TxHash, gov.calls)
	}
}

func TestValidationFailures(t *testing.T) {
	h := newHarness(t)
	spec := dcaOrder()
	spec.TotalExecutions = 0

	if _, err := h.engine.Precheck(context.Background(), types.OrderRequest{Order: spec}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("precheck: expected ErrValidation, got %v", err)
	}

	spec = limitOrder(types.ConditionGreaterThan, T+60)
	spec.TargetPrice = "0"
	if _, err := h.engine.Execute(context.Background(), types.OrderRequest{Order: spec}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("execute: expected ErrValidation, got %v", err)
	}

	spec = dcaOrder()
	spec.Amount = "0.0000001" // finer than USDC's 6 decimals
	if _, err := h.engine.Precheck(context.Background(), types.OrderRequest{Order: spec}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("excess precision: expected ErrValidation, got %v", err)
	}
}

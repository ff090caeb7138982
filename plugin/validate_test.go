package plugin

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vultisig/trigger-plugin/internal/types"
)

const (
	wallet = "0x1111111111111111111111111111111111111111"
	usdc   = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	weth   = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
)

var now = time.Unix(1_760_000_000, 0)

func baseDCA() types.OrderSpec {
	return types.OrderSpec{
		Type:              types.OrderTypeDCA,
		WalletAddress:     wallet,
		SourceAsset:       usdc,
		DestinationAsset:  weth,
		Amount:            "100",
		Network:           "ethereum",
		Frequency:         types.FrequencyDaily,
		TotalExecutions:   3,
		NextExecutionTime: now.Unix() + 60,
	}
}

func baseLimit() types.OrderSpec {
	return types.OrderSpec{
		Type:             types.OrderTypeLimit,
		WalletAddress:    wallet,
		SourceAsset:      weth,
		DestinationAsset: usdc,
		Amount:           "0.5",
		Network:          "arbitrum",
		TargetPrice:      "4000",
		Condition:        types.ConditionGreaterThan,
		ExpirationTime:   now.Unix() + 3600,
	}
}

func TestValidateNewOrderAccepts(t *testing.T) {
	for _, spec := range []types.OrderSpec{baseDCA(), baseLimit()} {
		trigger, err := ValidateNewOrder(spec, now)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", spec.Type, err)
		}
		if trigger.Type() != spec.Type {
			t.Errorf("trigger type = %s, want %s", trigger.Type(), spec.Type)
		}
	}
}

func TestValidateOrderRejects(t *testing.T) {
	tests := []struct {
		name   string
		spec   types.OrderSpec
		reason string
	}{
		{"same asset different case", func() types.OrderSpec {
			s := baseDCA()
			s.DestinationAsset = strings.ToLower(usdc)
			return s
		}(), "must differ"},
		{"bad source address", func() types.OrderSpec {
			s := baseDCA()
			s.SourceAsset = "usdc"
			return s
		}(), "fromTokenAddress is not a valid address"},
		{"zero amount", func() types.OrderSpec {
			s := baseDCA()
			s.Amount = "0"
			return s
		}(), "amount must be positive"},
		{"garbage amount", func() types.OrderSpec {
			s := baseDCA()
			s.Amount = "ten"
			return s
		}(), "not a decimal"},
		{"slippage too high", func() types.OrderSpec {
			s := baseDCA()
			s.SlippageBps = 5001
			return s
		}(), "slippageBps must be at most 5000"},
		{"negative slippage", func() types.OrderSpec {
			s := baseDCA()
			s.SlippageBps = -1
			return s
		}(), "slippageBps must be at least 1"},
		{"native sentinel to zero address", func() types.OrderSpec {
			s := baseLimit()
			s.SourceAsset = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
			s.DestinationAsset = "0x0000000000000000000000000000000000000000"
			return s
		}(), "must differ"},
		{"unsupported network", func() types.OrderSpec {
			s := baseDCA()
			s.Network = "solana"
			return s
		}(), "unsupported network"},
		{"unknown type", func() types.OrderSpec {
			s := baseDCA()
			s.Type = "TWAP"
			return s
		}(), "orderType"},
		{"dca without totalExecutions", func() types.OrderSpec {
			s := baseDCA()
			s.TotalExecutions = 0
			return s
		}(), "totalExecutions"},
		{"limit with zero target", func() types.OrderSpec {
			s := baseLimit()
			s.TargetPrice = "0"
			return s
		}(), "targetPrice must be positive"},
	}

	for _, tt := range tests {
		_, err := ValidateOrder(tt.spec)
		if !errors.Is(err, types.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", tt.name, err)
			continue
		}
		if !strings.Contains(err.Error(), tt.reason) {
			t.Errorf("%s: error %q does not mention %q", tt.name, err, tt.reason)
		}
	}
}

func TestValidateOrderSkipsScheduleRules(t *testing.T) {
	spec := baseDCA()
	spec.NextExecutionTime = now.Unix() - 10

	if _, err := ValidateOrder(spec); err != nil {
		t.Errorf("structural validation should accept a due order: %v", err)
	}
	if _, err := ValidateNewOrder(spec, now); !errors.Is(err, types.ErrValidation) {
		t.Errorf("creation validation should reject a past execution time, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	res := Check(baseLimit(), now)
	if !res.Valid || res.Reason != "" {
		t.Errorf("expected valid result, got %+v", res)
	}

	spec := baseLimit()
	spec.ExpirationTime = now.Unix()
	res = Check(spec, now)
	if res.Valid {
		t.Fatal("expired limit spec reported valid")
	}
	if res.Reason != "expirationTime must be in the future" {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestStateOrInitial(t *testing.T) {
	trigger, err := ValidateOrder(baseDCA())
	if err != nil {
		t.Fatalf("ValidateOrder failed: %v", err)
	}
	initial := StateOrInitial(trigger, nil)
	if initial.ExecutionsRemaining != 3 || initial.NextExecutionTime != now.Unix()+60 {
		t.Errorf("unexpected initial state %+v", initial)
	}

	supplied := types.TriggerState{ExecutionsRemaining: 1, NextExecutionTime: 42}
	if got := StateOrInitial(trigger, &supplied); got != supplied {
		t.Errorf("supplied state not returned: %+v", got)
	}
}

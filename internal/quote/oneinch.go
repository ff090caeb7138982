package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/common"
	"github.com/vultisig/trigger-plugin/internal/types"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	BaseURL        string `mapstructure:"base_url" json:"base_url,omitempty"`
	APIKey         string `mapstructure:"api_key" json:"api_key,omitempty"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds,omitempty"`
	// Protocols restricts routing to the listed liquidity sources when set.
	Protocols []string `mapstructure:"protocols" json:"protocols,omitempty"`
}

// OneInchClient prices swaps against a 1inch v6 compatible swap API and
// returns the router call that executes the quoted route.
type OneInchClient struct {
	cfg    Config
	client *http.Client
	logger logrus.FieldLogger
}

func NewOneInchClient(rawConfig map[string]interface{}, logger logrus.FieldLogger) (*OneInchClient, error) {
	var cfg Config
	if err := mapstructure.Decode(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode quote config: %w", err)
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("quote base_url is required")
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OneInchClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.WithField("component", "quote"),
	}, nil
}

type swapResponse struct {
	DstAmount   string `json:"dstAmount"`
	PriceImpact string `json:"priceImpact,omitempty"`
	Tx          struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
		Gas   uint64 `json:"gas"`
	} `json:"tx"`
	Protocols [][][]struct {
		Name string  `json:"name"`
		Part float64 `json:"part"`
	} `json:"protocols,omitempty"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"description"`
}

// tokenParam maps both native sentinels onto the aggregator's 0xEeee form.
func tokenParam(token gcommon.Address) string {
	if common.IsNativeAsset(token.Hex()) {
		return common.NativeAssetAddress
	}
	return token.Hex()
}

// slippagePercent renders basis points as the percentage the API expects.
func slippagePercent(bps int) string {
	return decimal.NewFromInt(int64(bps)).Div(decimal.NewFromInt(100)).String()
}

func (c *OneInchClient) swapURL(req types.QuoteRequest) string {
	params := url.Values{}
	params.Set("src", tokenParam(req.FromToken))
	params.Set("dst", tokenParam(req.ToToken))
	params.Set("amount", req.Amount.String())
	params.Set("from", req.Wallet.Hex())
	params.Set("origin", req.Wallet.Hex())
	params.Set("slippage", slippagePercent(req.SlippageBps))
	params.Set("disableEstimate", "true")
	params.Set("includeProtocols", "true")
	if len(c.cfg.Protocols) > 0 {
		params.Set("protocols", strings.Join(c.cfg.Protocols, ","))
	}
	return fmt.Sprintf("%s/swap/v6.0/%d/swap?%s", c.cfg.BaseURL, req.ChainID, params.Encode())
}

func (c *OneInchClient) Quote(ctx context.Context, req types.QuoteRequest) (*types.SwapQuote, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrQuoteProvider)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.swapURL(req), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", types.ErrQuoteProvider, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", types.ErrQuoteProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Description != "" {
			msg = apiErr.Description
		}
		c.logger.WithFields(logrus.Fields{
			"status":   resp.StatusCode,
			"chain_id": req.ChainID,
		}).Warn("quote request rejected")
		return nil, fmt.Errorf("%w: status %d: %s", types.ErrQuoteProvider, resp.StatusCode, msg)
	}

	var sr swapResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", types.ErrQuoteProvider, err)
	}
	return sr.toQuote()
}

func (sr swapResponse) toQuote() (*types.SwapQuote, error) {
	toAmount, ok := new(big.Int).SetString(sr.DstAmount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid dstAmount %q", types.ErrQuoteProvider, sr.DstAmount)
	}
	if !gcommon.IsHexAddress(sr.Tx.To) {
		return nil, fmt.Errorf("%w: invalid router address %q", types.ErrQuoteProvider, sr.Tx.To)
	}
	data, err := hexutil.Decode(sr.Tx.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid call data: %v", types.ErrQuoteProvider, err)
	}
	value := big.NewInt(0)
	if sr.Tx.Value != "" {
		if _, ok := value.SetString(sr.Tx.Value, 10); !ok {
			return nil, fmt.Errorf("%w: invalid tx value %q", types.ErrQuoteProvider, sr.Tx.Value)
		}
	}

	q := &types.SwapQuote{
		ToAmount: toAmount,
		Gas:      sr.Tx.Gas,
		Router:   gcommon.HexToAddress(sr.Tx.To),
		CallData: data,
		Value:    value,
		DexName:  sr.dexName(),
	}
	if sr.PriceImpact != "" {
		if impact, err := decimal.NewFromString(sr.PriceImpact); err == nil {
			q.PriceImpact = &impact
		}
	}
	return q, nil
}

// dexName reports the protocol carrying the largest share of the route.
func (sr swapResponse) dexName() string {
	best, bestPart := "", -1.0
	for _, route := range sr.Protocols {
		for _, hop := range route {
			for _, p := range hop {
				if p.Part > bestPart {
					best, bestPart = p.Name, p.Part
				}
			}
		}
	}
	if best == "" {
		return "1inch"
	}
	return best
}

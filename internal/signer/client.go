package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/internal/types"
)

type Config struct {
	URL            string `mapstructure:"url" json:"url,omitempty"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

// Client hands unsigned router calls to the signing service, which holds
// the wallet keys and broadcasts the signed transaction.
type Client struct {
	url    string
	client *http.Client
	logger logrus.FieldLogger
}

func NewClient(cfg Config, logger logrus.FieldLogger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("signer url is required")
	}
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		url:    strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger.WithField("component", "signer"),
	}, nil
}

type broadcastRequest struct {
	ChainID  int64  `json:"chain_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasLimit uint64 `json:"gas_limit"`
	OrderID  string `json:"order_id"`
}

type broadcastResponse struct {
	TxHash         string `json:"tx_hash"`
	ReceivedAmount string `json:"received_amount,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (c *Client) Submit(ctx context.Context, tx types.SwapTx) (*types.SubmitResult, error) {
	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	payload, err := json.Marshal(broadcastRequest{
		ChainID:  tx.ChainID,
		From:     tx.From.Hex(),
		To:       tx.To.Hex(),
		Data:     hexutil.Encode(tx.Data),
		Value:    value.String(),
		GasLimit: tx.GasLimit,
		OrderID:  tx.OrderID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %v", types.ErrSubmission, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/broadcast", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", types.ErrSubmission, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSubmission, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", types.ErrSubmission, err)
	}

	var br broadcastResponse
	decodeErr := json.Unmarshal(body, &br)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && br.Error != "" {
			msg = br.Error
		}
		c.logger.WithFields(logrus.Fields{
			"order_id": tx.OrderID,
			"status":   resp.StatusCode,
		}).Error("broadcast rejected")
		return nil, fmt.Errorf("%w: status %d: %s", types.ErrSubmission, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", types.ErrSubmission, decodeErr)
	}
	if raw, err := hexutil.Decode(br.TxHash); err != nil || len(raw) != gcommon.HashLength {
		return nil, fmt.Errorf("%w: malformed tx hash %q", types.ErrSubmission, br.TxHash)
	}

	res := &types.SubmitResult{TxHash: br.TxHash}
	if br.ReceivedAmount != "" {
		if amt, ok := new(big.Int).SetString(br.ReceivedAmount, 10); ok {
			res.ReceivedAmount = amt
		}
	}
	return res, nil
}

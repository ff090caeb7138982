package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/common"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Backend is the subset of ethclient.Client used for reads.
type Backend interface {
	CallContract(ctx context.Context, msg geth.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account gcommon.Address, blockNumber *big.Int) (*big.Int, error)
}

type decimalsKey struct {
	chainID int64
	token   gcommon.Address
}

// Reader serves balance, allowance and decimals reads for every configured
// chain. Token decimals are immutable and cached per chain.
type Reader struct {
	backends map[int64]Backend
	logger   logrus.FieldLogger

	mu       sync.RWMutex
	decimals map[decimalsKey]uint8
}

// Dial opens one RPC client per configured network. rpcs maps network
// names (see common.ChainID) to RPC URLs.
func Dial(rpcs map[string]string, logger logrus.FieldLogger) (*Reader, error) {
	backends := make(map[int64]Backend, len(rpcs))
	for network, url := range rpcs {
		chainID, err := common.ChainID(network)
		if err != nil {
			return nil, err
		}
		client, err := ethclient.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s rpc: %w", network, err)
		}
		backends[chainID] = client
	}
	return NewReader(backends, logger), nil
}

func NewReader(backends map[int64]Backend, logger logrus.FieldLogger) *Reader {
	return &Reader{
		backends: backends,
		logger:   logger.WithField("component", "chain_reader"),
		decimals: make(map[decimalsKey]uint8),
	}
}

func (r *Reader) backend(chainID int64) (Backend, error) {
	b, ok := r.backends[chainID]
	if !ok {
		if name, known := common.NetworkName(chainID); known {
			return nil, fmt.Errorf("no rpc configured for %s (chain %d)", name, chainID)
		}
		return nil, fmt.Errorf("no rpc configured for chain %d", chainID)
	}
	return b, nil
}

func (r *Reader) call(ctx context.Context, chainID int64, token gcommon.Address, method string, args ...interface{}) ([]interface{}, error) {
	b, err := r.backend(chainID)
	if err != nil {
		return nil, err
	}
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := b.CallContract(ctx, geth.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call on %s failed: %w", method, token.Hex(), err)
	}
	values, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s output length %d", method, len(values))
	}
	return values, nil
}

func (r *Reader) Decimals(ctx context.Context, chainID int64, token gcommon.Address) (uint8, error) {
	if common.IsNativeAsset(token.Hex()) {
		return common.NativeDecimals, nil
	}
	key := decimalsKey{chainID: chainID, token: token}
	r.mu.RLock()
	d, ok := r.decimals[key]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}

	values, err := r.call(ctx, chainID, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok = values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}
	r.mu.Lock()
	r.decimals[key] = d
	r.mu.Unlock()
	return d, nil
}

func (r *Reader) Balance(ctx context.Context, chainID int64, token, owner gcommon.Address) (*big.Int, error) {
	if common.IsNativeAsset(token.Hex()) {
		b, err := r.backend(chainID)
		if err != nil {
			return nil, err
		}
		balance, err := b.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read native balance: %w", err)
		}
		return balance, nil
	}
	values, err := r.call(ctx, chainID, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func (r *Reader) Allowance(ctx context.Context, chainID int64, token, owner, spender gcommon.Address) (*big.Int, error) {
	values, err := r.call(ctx, chainID, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func asBigInt(v interface{}) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected uint256 type %T", v)
	}
	return n, nil
}

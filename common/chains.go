package common

import (
	"fmt"
	"strings"
)

var chainIDs = map[string]int64{
	"ethereum":  1,
	"optimism":  10,
	"bnb":       56,
	"polygon":   137,
	"base":      8453,
	"arbitrum":  42161,
	"avalanche": 43114,

	"sepolia":          11155111,
	"optimism-sepolia": 11155420,
	"bnb-testnet":      97,
	"polygon-amoy":     80002,
	"base-sepolia":     84532,
	"arbitrum-sepolia": 421614,
	"avalanche-fuji":   43113,
}

// ChainID resolves a network name to its numeric chain id.
func ChainID(network string) (int64, error) {
	id, ok := chainIDs[strings.ToLower(strings.TrimSpace(network))]
	if !ok {
		return 0, fmt.Errorf("unsupported network: %q", network)
	}
	return id, nil
}

func NetworkName(chainID int64) (string, bool) {
	for name, id := range chainIDs {
		if id == chainID {
			return name, true
		}
	}
	return "", false
}

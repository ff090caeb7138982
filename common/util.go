package common

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// NativeAssetAddress is the aggregator convention for the chain's native coin.
const NativeAssetAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

const NativeDecimals = 18

// IsNativeAsset reports whether address denotes the native coin rather than
// an ERC-20 contract. Both the 0xEeee sentinel and the zero address are accepted.
func IsNativeAsset(address string) bool {
	if strings.EqualFold(address, NativeAssetAddress) {
		return true
	}
	return common.IsHexAddress(address) && common.HexToAddress(address) == (common.Address{})
}

func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// SameAsset is SameAddress with every native coin spelling treated as one asset.
func SameAsset(a, b string) bool {
	if IsNativeAsset(a) || IsNativeAsset(b) {
		return IsNativeAsset(a) && IsNativeAsset(b)
	}
	return SameAddress(a, b)
}

// ToBaseUnits converts a human readable amount into integer base units.
// Precision beyond the token decimals is rejected rather than truncated.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	scaled := amount.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount.String(), decimals)
	}
	return scaled.BigInt(), nil
}

func FromBaseUnits(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

func GetSortingCondition(sort string) (string, string) {
	// Default sorting column
	orderBy := "created_at"
	orderDirection := "ASC"

	isDescending := strings.HasPrefix(sort, "-")
	columnName := strings.TrimPrefix(sort, "-")

	// Only whitelisted columns reach the query
	allowedColumns := map[string]bool{"updated_at": true, "created_at": true, "next_execution_time": true}
	if allowedColumns[columnName] {
		orderBy = columnName
	}

	if isDescending {
		orderDirection = "DESC"
	}

	return orderBy, orderDirection
}

package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var weiPerEther = decimal.New(1, 18)

func IsValidEthereumAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress lower-cases a hex address for storage and comparison
func NormalizeAddress(address string) string {
	return strings.ToLower(common.HexToAddress(address).Hex())
}

// SameAddress compares two hex addresses case-insensitively
func SameAddress(a, b string) bool {
	return IsValidEthereumAddress(a) && IsValidEthereumAddress(b) && common.HexToAddress(a) == common.HexToAddress(b)
}

// EtherToWei parses a decimal ether amount such as "0.05". Empty input is zero.
func EtherToWei(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid ether amount %q: %w", amount, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("ether amount must not be negative")
	}
	wei := value.Mul(weiPerEther)
	if !wei.Equal(wei.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("ether amount %q has more than 18 decimals", amount)
	}
	return wei, nil
}

// WeiToBig converts an integral wei decimal to a big.Int
func WeiToBig(wei decimal.Decimal) *big.Int {
	return wei.Truncate(0).BigInt()
}
